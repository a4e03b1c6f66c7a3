package pairing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePairCode(t *testing.T) {
	code, err := GeneratePairCode()
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.False(t, strings.ContainsAny(code, "0O1I"))
}

func TestExchangeIsOneShot(t *testing.T) {
	tbl := NewTable(time.Minute)
	o, err := tbl.Issue()
	require.NoError(t, err)

	_, err = tbl.Exchange(o.PairID, "WRONGCOD")
	require.ErrorIs(t, err, ErrInvalidCode)

	token, err := tbl.Exchange(o.PairID, o.Code)
	require.NoError(t, err)
	assert.True(t, tbl.Valid(token))
	assert.False(t, tbl.Valid(token+"x"))
	assert.False(t, tbl.Valid(""))

	_, err = tbl.Exchange(o.PairID, o.Code)
	require.ErrorIs(t, err, ErrExpired)
}

func TestExchangeAfterTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tbl := NewTable(DefaultTTL)
	tbl.now = func() time.Time { return now }

	o, err := tbl.Issue()
	require.NoError(t, err)

	now = now.Add(DefaultTTL + time.Second)
	_, err = tbl.Exchange(o.PairID, o.Code)
	require.ErrorIs(t, err, ErrExpired)
}
