package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Veraticus/notiledger/internal/common"
)

func TestFsError(t *testing.T) {
	tests := []struct {
		err       error
		want      error
		name      string
		retryable bool
	}{
		{name: "not found", err: status.Error(codes.NotFound, "missing"), want: common.ErrNotFound},
		{name: "already exists", err: status.Error(codes.AlreadyExists, "dup"), want: common.ErrDuplicateEntry},
		{name: "aborted", err: status.Error(codes.Aborted, "contention"), want: common.ErrStorageBusy, retryable: true},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), want: common.ErrStorageBusy, retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fsError(tt.err, "op")
			assert.ErrorIs(t, got, tt.want)
			assert.Equal(t, tt.retryable, common.IsRetryable(got))
		})
	}

	assert.NoError(t, fsError(nil, "op"))

	plain := errors.New("boom")
	assert.ErrorIs(t, fsError(plain, "op"), plain)
}

func TestDocID(t *testing.T) {
	a := docID("스타벅스", "EXPENSE")
	assert.Len(t, a, 40)
	assert.Equal(t, a, docID("스타벅스", "EXPENSE"))
	assert.NotEqual(t, a, docID("스타벅스", "INCOME"))
	// Part boundaries are significant.
	assert.NotEqual(t, docID("ab", "c"), docID("a", "bc"))
}

func TestFirestoreAuth_ClientOptions(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, FirestoreAuth{}.clientOptions(ctx))
	assert.Len(t, FirestoreAuth{CredentialsFile: "/tmp/sa.json"}.clientOptions(ctx), 1)

	oauth := FirestoreAuth{CredentialsFile: "/tmp/sa.json", ClientID: "id", ClientSecret: "secret", RefreshToken: "token"}
	assert.True(t, oauth.hasOAuth())
	assert.Len(t, oauth.clientOptions(ctx), 1)

	assert.False(t, FirestoreAuth{ClientID: "id", RefreshToken: "token"}.hasOAuth())
}
