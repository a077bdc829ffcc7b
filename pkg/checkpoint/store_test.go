package checkpoint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func newRecord(id string, createdAt time.Time, payload []byte) *types.CheckpointRecord {
	return &types.CheckpointRecord{
		CheckpointID: id,
		CreatedAt:    createdAt,
		OwnerNodeID:  "node-1",
		Payload:      payload,
		PayloadSize:  int64(len(payload)),
		ContentHash:  ContentHash(payload),
	}
}

// storeUnderTest runs the same contract checks against every backend
func storeUnderTest(t *testing.T, name string, open func(t *testing.T) Store) {
	t.Run(name+"/save and load", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		payload := []byte("application state")
		require.NoError(t, s.Save(ctx, newRecord("cp-1", time.Now(), payload)))

		loaded, err := s.Load(ctx, "cp-1")
		require.NoError(t, err)
		assert.Equal(t, payload, loaded.Payload)
		assert.Equal(t, ContentHash(payload), loaded.ContentHash)
		assert.Equal(t, "node-1", loaded.OwnerNodeID)
	})

	t.Run(name+"/records are immutable", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, newRecord("cp-1", time.Now(), []byte("v1"))))
		err := s.Save(ctx, newRecord("cp-1", time.Now(), []byte("v2")))
		assert.Error(t, err)

		loaded, err := s.Load(ctx, "cp-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), loaded.Payload)
	})

	t.Run(name+"/load missing", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		_, err := s.Load(context.Background(), "nope")
		assert.ErrorIs(t, err, types.ErrCheckpointNotFound)
	})

	t.Run(name+"/list newest first without payloads", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		base := time.Now().Add(-time.Hour)
		for i := 0; i < 3; i++ {
			record := newRecord(fmt.Sprintf("cp-%d", i), base.Add(time.Duration(i)*time.Minute), []byte("data"))
			require.NoError(t, s.Save(ctx, record))
		}

		records, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "cp-2", records[0].CheckpointID)
		assert.Equal(t, "cp-0", records[2].CheckpointID)
		for _, record := range records {
			assert.Nil(t, record.Payload)
		}
	})

	t.Run(name+"/delete", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, newRecord("cp-1", time.Now(), []byte("x"))))
		require.NoError(t, s.Delete(ctx, "cp-1"))
		_, err := s.Load(ctx, "cp-1")
		assert.ErrorIs(t, err, types.ErrCheckpointNotFound)

		// Deleting a missing record is not an error
		assert.NoError(t, s.Delete(ctx, "cp-1"))
	})
}

func TestFileStore(t *testing.T) {
	storeUnderTest(t, "file", func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestBoltStore(t *testing.T) {
	storeUnderTest(t, "bolt", func(t *testing.T) Store {
		s, err := NewBoltStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestEncryptedStore(t *testing.T) {
	storeUnderTest(t, "encrypted", func(t *testing.T) Store {
		inner, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		s, err := NewEncryptedStoreFromPassphrase(inner, "test-passphrase")
		require.NoError(t, err)
		return s
	})
}

// TestEncryptedStoreCiphertextAtRest verifies the inner store never
// sees plaintext.
func TestEncryptedStoreCiphertextAtRest(t *testing.T) {
	inner, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	s, err := NewEncryptedStoreFromPassphrase(inner, "test-passphrase")
	require.NoError(t, err)
	ctx := context.Background()

	payload := []byte("very secret state")
	require.NoError(t, s.Save(ctx, newRecord("cp-1", time.Now(), payload)))

	raw, err := inner.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.NotEqual(t, payload, raw.Payload)
	assert.NotContains(t, string(raw.Payload), "very secret")

	decrypted, err := s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, payload, decrypted.Payload)
}

// TestEncryptedStoreWrongKey verifies decryption fails with a
// different passphrase.
func TestEncryptedStoreWrongKey(t *testing.T) {
	inner, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	s1, err := NewEncryptedStoreFromPassphrase(inner, "passphrase-a")
	require.NoError(t, err)
	require.NoError(t, s1.Save(ctx, newRecord("cp-1", time.Now(), []byte("state"))))

	s2, err := NewEncryptedStoreFromPassphrase(inner, "passphrase-b")
	require.NoError(t, err)
	_, err = s2.Load(ctx, "cp-1")
	assert.Error(t, err)
}

// TestEncryptedStoreKeyLength verifies key validation
func TestEncryptedStoreKeyLength(t *testing.T) {
	inner, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = NewEncryptedStore(inner, []byte("short"))
	assert.Error(t, err)

	_, err = NewEncryptedStoreFromPassphrase(inner, "")
	assert.Error(t, err)
}
