/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package codec

import (
	"fmt"
	"sort"
	"sync"

	"go.osspkg.com/errors"
)

var (
	ErrUnknownProtocol = errors.New("unknown protocol")
	ErrUnsupportedType = errors.New("unsupported message type")
)

type (
	// Decoder is stateful and owned by one channel. Decode returns every complete message found in buf and
	// how many bytes they used; bytes of an incomplete message are never consumed.
	Decoder interface {
		Decode(buf []byte) (msgs []any, consumed int, err error)
	}

	// Encoder is called from any goroutine that flushes to the channel and must be safe for concurrent use.
	Encoder interface {
		Encode(msg any) ([]byte, error)
	}

	ProtocolFactory interface {
		ProtocolID() string
		NewDecoder() Decoder
		NewEncoder() Encoder
	}

	// Correlated messages take part in request/response matching on a session.
	Correlated interface {
		CorrelationID() uint64
		SetCorrelationID(id uint64)
	}
)

type Registry struct {
	list map[string]ProtocolFactory
	mux  sync.RWMutex
}

func NewRegistry(factories ...ProtocolFactory) *Registry {
	r := &Registry{list: make(map[string]ProtocolFactory, len(factories))}
	for _, f := range factories {
		r.list[f.ProtocolID()] = f
	}
	return r
}

func (r *Registry) Register(f ProtocolFactory) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	if _, ok := r.list[f.ProtocolID()]; ok {
		return fmt.Errorf("protocol %q already registered", f.ProtocolID())
	}
	r.list[f.ProtocolID()] = f
	return nil
}

func (r *Registry) Lookup(id string) (ProtocolFactory, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	f, ok := r.list[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProtocol, "lookup %q", id)
	}
	return f, nil
}

func (r *Registry) IDs() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()

	result := make([]string, 0, len(r.list))
	for id := range r.list {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
