package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadURL_EscapesObjectName(t *testing.T) {
	got := DownloadURL("shop.appspot.com", "uploads/p1/no-task/1718000000000_a b.jpg", "tok")
	assert.Equal(t, "https://firebasestorage.googleapis.com/v0/b/shop.appspot.com/o/uploads%2Fp1%2Fno-task%2F1718000000000_a%20b.jpg?alt=media&token=tok", got)
}

func TestObjectPathFromAddress(t *testing.T) {
	const bucket = "shop.appspot.com"
	tests := []struct {
		name    string
		address string
		want    string
		wantErr bool
	}{
		{"download url", DownloadURL(bucket, "uploads/p1/s1/1_a.jpg", "t"), "uploads/p1/s1/1_a.jpg", false},
		{"gs uri", "gs://shop.appspot.com/uploads/p1/s1/1_a.jpg", "uploads/p1/s1/1_a.jpg", false},
		{"public url", "https://storage.googleapis.com/shop.appspot.com/reports/p1/5.pdf", "reports/p1/5.pdf", false},
		{"bare path", "/uploads/p1/s1/1_a.jpg", "uploads/p1/s1/1_a.jpg", false},
		{"other bucket", "gs://elsewhere/uploads/x.jpg", "", true},
		{"no object", "gs://shop.appspot.com/", "", true},
		{"unknown scheme", "ftp://shop/uploads/x.jpg", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ObjectPathFromAddress(bucket, tt.address)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
