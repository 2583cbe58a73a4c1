package blob

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ref, size, err := store.Save(strings.NewReader("attachment bytes"), 1024)
	assert.NoError(t, err)
	assert.Equal(t, int64(16), size)
	assert.NotEmpty(t, ref)

	reader, err := store.Open(ref)
	assert.NoError(t, err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Equal(t, "attachment bytes", string(content))

	assert.NoError(t, store.Delete(ref))
	_, err = store.Open(ref)
	assert.Error(t, err)
}

func TestSaveEnforcesSizeLimit(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	_, _, err = store.Save(strings.NewReader("this is more than ten bytes"), 10)
	assert.Error(t, err)
}

func TestOpenRejectsNonUUIDRefs(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	_, err = store.Open("../../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, store.Delete("../secret"))
}
