// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package progress exposes a read-only HTTP status endpoint for a running
// Invert/Predict call: current pass index, rows read so far, the w-range
// and beam size found by the pre-pass. It is purely observational — the
// core's Invert/Predict calls remain synchronous regardless of whether a
// server is attached.
package progress

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// Status is the JSON snapshot served at GET /api/v1/status.
type Status struct {
	Pass         int     `json:"pass"`
	PassCount    int     `json:"passCount"`
	RowsRead     int64   `json:"rowsRead"`
	MatchingRows int64   `json:"matchingRows"`
	MinW         float64 `json:"minW"`
	MaxW         float64 `json:"maxW"`
	BeamSize     float64 `json:"beamSizeRad"`
	LayerCount   int     `json:"layerCount"`
}

// Server holds the latest Status behind a mutex and serves it over gin.
type Server struct {
	mu     sync.RWMutex
	status Status
	engine *gin.Engine
}

// NewServer builds a Server with routes registered but not yet listening.
func NewServer() *Server {
	s := &Server{}
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/status", s.getStatus)
		}
	}
	s.engine = r
	return s
}

// Update replaces the served status snapshot. Safe to call concurrently
// with requests being served.
func (s *Server) Update(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Server) getStatus(c *gin.Context) {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	c.JSON(200, st)
}

// Run listens and serves on addr (e.g. ":8080"), blocking until the
// listener fails or the process exits.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}
