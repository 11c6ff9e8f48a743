// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoService struct {
	UnimplementedService
}

func (echoService) CallUnary(_ uint32, body []byte) ([]byte, error) { return body, nil }

func TestServiceRegistryRegisterAndLookup(t *testing.T) {
	r := NewServiceRegistry()
	require.NoError(t, r.Register(1, echoService{}))

	svc, ok := r.Lookup(1)
	require.True(t, ok)
	resp, err := svc.CallUnary(0, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(resp))
}

func TestServiceRegistryDuplicateRegistrationKeepsOriginal(t *testing.T) {
	r := NewServiceRegistry()
	first := echoService{}
	require.NoError(t, r.Register(1, first))

	err := r.Register(1, echoService{})
	assert.ErrorIs(t, err, ErrServiceExists)

	svc, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, first, svc)
}

func TestServiceRegistryLookupMiss(t *testing.T) {
	r := NewServiceRegistry()
	_, ok := r.Lookup(99)
	assert.False(t, ok)
}

func TestUnimplementedServiceDefaults(t *testing.T) {
	var svc UnimplementedService
	assert.Equal(t, Unary, svc.MethodKind(0))

	_, err := svc.CallClientStream(0, nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestMethodKindString(t *testing.T) {
	assert.Equal(t, "Unary", Unary.String())
	assert.Equal(t, "ServerStreaming", ServerStreaming.String())
	assert.Equal(t, "ClientStreaming", ClientStreaming.String())
	assert.Equal(t, "Bidirectional", Bidirectional.String())
}
