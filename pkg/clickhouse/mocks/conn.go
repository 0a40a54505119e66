// Package mocks provides testify mocks for the ClickHouse driver interfaces.
package mocks

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// Conn mocks driver.Conn. Methods that are not overridden panic through the nil embedded
// interface, which flags unexpected driver usage in tests.
type Conn struct {
	driver.Conn
	mock.Mock
}

func (m *Conn) Exec(ctx context.Context, query string, args ...any) error {
	return m.Called(append([]any{ctx, query}, args...)...).Error(0)
}

func (m *Conn) PrepareBatch(ctx context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	ret := m.Called(ctx, query)
	b, _ := ret.Get(0).(driver.Batch)
	return b, ret.Error(1)
}

func (m *Conn) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Conn) Close() error {
	return m.Called().Error(0)
}

// Batch mocks driver.Batch and records appended rows.
type Batch struct {
	driver.Batch
	mock.Mock

	Appended [][]any
}

func (b *Batch) Append(v ...any) error {
	if err := b.Called(v...).Error(0); err != nil {
		return err
	}
	b.Appended = append(b.Appended, v)
	return nil
}

func (b *Batch) Send() error {
	return b.Called().Error(0)
}

func (b *Batch) Abort() error {
	return b.Called().Error(0)
}
