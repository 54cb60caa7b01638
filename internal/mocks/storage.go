package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

type ObjectStoreMock struct {
	mock.Mock
}

func (m *ObjectStoreMock) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if r != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	args := m.Called(ctx, key, size, contentType)
	return args.String(0), args.Error(1)
}
