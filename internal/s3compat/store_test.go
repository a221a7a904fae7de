package s3compat

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore() *Store {
	return newStore(nil, "progress", "https://cdn.example.com/progress/")
}

func TestPublicURL_EscapesSegments(t *testing.T) {
	s := testStore()
	assert.Equal(t, "https://cdn.example.com/progress/uploads/p1/no-task/1_a%20b.jpg", s.PublicURL("uploads/p1/no-task/1_a b.jpg"))
}

func TestKeyOf(t *testing.T) {
	s := testStore()
	tests := []struct {
		name    string
		address string
		want    string
		wantErr bool
	}{
		{"public url", s.PublicURL("uploads/p1/s1/1_a b.jpg"), "uploads/p1/s1/1_a b.jpg", false},
		{"s3 uri", "s3://progress/uploads/p1/s1/1_a.jpg", "uploads/p1/s1/1_a.jpg", false},
		{"bare key", "uploads/p1/s1/1_a.jpg", "uploads/p1/s1/1_a.jpg", false},
		{"other bucket", "s3://other/uploads/p1/s1/1_a.jpg", "", true},
		{"foreign url", "https://elsewhere.example.com/x.jpg", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.keyOf(tt.address)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProgressReader_ReportsCumulativeBytes(t *testing.T) {
	var seen []int64
	p := &progressReader{fn: func(n int64) { seen = append(seen, n) }}

	for _, size := range []int{100, 50, 7} {
		n, err := p.Read(make([]byte, size))
		require.NoError(t, err)
		assert.Equal(t, size, n)
	}
	assert.Equal(t, []int64{100, 150, 157}, seen)
}

func TestIsNotFound(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}

	assert.True(t, isNotFound(notFound))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", notFound)))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("connection refused")))
}

func TestPublicReadPolicy(t *testing.T) {
	var policy struct {
		Statement []struct {
			Action   string
			Resource string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(publicReadPolicy("progress")), &policy))
	require.Len(t, policy.Statement, 1)
	assert.Equal(t, "s3:GetObject", policy.Statement[0].Action)
	assert.Equal(t, "arn:aws:s3:::progress/*", policy.Statement[0].Resource)
}
