package core

import "github.com/searchktools/conduit/core/pools"

// Stats is a snapshot of engine counters.
type Stats struct {
	ActiveConnections   int64             `json:"active_connections"`
	RejectedConnections uint64            `json:"rejected_connections"`
	Requests            uint64            `json:"requests"`
	HTTP2Connections    int64             `json:"http2_connections"`
	HTTP2Streams        uint64            `json:"http2_streams"`
	Buffers             pools.BufferStats `json:"buffers"`
	BufferHitRate       float64           `json:"buffer_hit_rate"`
}

// Stats returns counters for connections, requests and buffer pools.
func (e *Engine) Stats() Stats {
	buffers := e.buffers.Stats()
	s := Stats{
		ActiveConnections:   e.active.Load(),
		RejectedConnections: e.rejected.Load(),
		Requests:            e.served.Load(),
		Buffers:             buffers,
		BufferHitRate:       buffers.HitRate(),
	}
	if e.h2 != nil {
		s.HTTP2Connections, s.HTTP2Streams = e.h2.Stats()
	}
	return s
}
