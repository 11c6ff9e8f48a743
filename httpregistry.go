// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// pathEntry names the (service_id, method_id) pair a path resolves to.
type pathEntry struct {
	ServiceID uint32
	MethodID  uint32
}

// PathRegistry maps an arbitrary string path (an HTTP route, say) to a
// (service_id, method_id) pair. It is the trivial collaborator this
// package exposes toward an HTTP front end; rpcframe itself runs no HTTP
// server and has no opinion on how a path was matched, only on what it
// resolves to.
type PathRegistry struct {
	mu    sync.RWMutex
	paths map[string]pathEntry
	log   *logrus.Logger
}

// NewPathRegistry returns an empty PathRegistry.
func NewPathRegistry() *PathRegistry {
	return &PathRegistry{
		paths: make(map[string]pathEntry),
		log:   logrus.StandardLogger(),
	}
}

// SetLogger overrides the registry's logger, used for the overwrite warning.
func (r *PathRegistry) SetLogger(l *logrus.Logger) { r.log = l }

// RegisterPath binds path to (serviceID, methodID). A path registered
// twice logs a warning and overwrites the prior binding with the new one.
func (r *PathRegistry) RegisterPath(path string, serviceID, methodID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.paths[path]; exists {
		r.log.WithField("path", path).
			Warn("rpcframe: duplicate path registration overwrites existing binding")
	}
	r.paths[path] = pathEntry{ServiceID: serviceID, MethodID: methodID}
}

// Resolve returns the (service_id, method_id) pair bound to path, if any.
func (r *PathRegistry) Resolve(path string) (serviceID, methodID uint32, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.paths[path]
	return e.ServiceID, e.MethodID, ok
}
