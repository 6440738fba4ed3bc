package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"

	copier "github.com/sidkik/scratchsync/pkg/copier"
)

// Copier is a mock type for the Copier type
type Copier struct {
	mock.Mock
}

// CopyDir provides a mock function with given fields: ctx, source, target, opts
func (_m *Copier) CopyDir(ctx context.Context, source string, target string, opts copier.Options) error {
	ret := _m.Called(ctx, source, target, opts)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string, copier.Options) error); ok {
		r0 = rf(ctx, source, target, opts)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// CopyFile provides a mock function with given fields: ctx, source, target
func (_m *Copier) CopyFile(ctx context.Context, source string, target string) error {
	ret := _m.Called(ctx, source, target)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		r0 = rf(ctx, source, target)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
