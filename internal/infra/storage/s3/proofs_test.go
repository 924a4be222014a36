package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProofStoreValidatesConfig(t *testing.T) {
	_, err := NewProofStore(Config{Bucket: "proofs"}, nil)
	assert.Error(t, err)
	_, err = NewProofStore(Config{Endpoint: "localhost:9000"}, nil)
	assert.Error(t, err)

	store, err := NewProofStore(Config{Endpoint: "http://minio:9000", PublicEndpoint: "cdn.example.test", Bucket: "proofs", UseSSL: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test", store.publicBaseURL)
}

func TestObjectURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000/proofs/proofs/bk-1/a.png", ObjectURL("http://localhost:9000/", "proofs", "/proofs/bk-1/a.png"))
	assert.Equal(t, "localhost:9000", parseEndpoint("http://localhost:9000"))
	assert.Equal(t, "minio:9000", parseEndpoint("minio:9000"))
}
