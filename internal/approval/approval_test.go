package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/wallet-bridge/internal/pending"
)

func TestServiceApproveReject(t *testing.T) {
	tests := []struct {
		name     string
		approved bool
	}{
		{name: "approve", approved: true},
		{name: "reject", approved: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := pending.NewRegistry()
			var svc *Service
			svc = NewService(reg, LauncherFunc(func(_ context.Context, p Prompt) error {
				assert.Equal(t, pending.KindConnection, p.Kind)
				assert.Equal(t, "https://dapp.xyz", p.Origin)
				assert.False(t, p.Deadline.IsZero())
				go svc.Resolve(p.RequestID, tc.approved)
				return nil
			}), time.Minute)

			ok, err := svc.RequestConnection(context.Background(), "https://dapp.xyz", []common.Address{{1}})
			require.NoError(t, err)
			assert.Equal(t, tc.approved, ok)
		})
	}
}

func TestChainAndImportPrompts(t *testing.T) {
	reg := pending.NewRegistry()
	var seen []Prompt
	var svc *Service
	svc = NewService(reg, LauncherFunc(func(_ context.Context, p Prompt) error {
		seen = append(seen, p)
		go svc.Resolve(p.RequestID, true)
		return nil
	}), time.Minute)
	ctx := context.Background()

	ok, err := svc.RequestChain(ctx, "https://a.b", ChainRequest{Action: ChainSwitch, ChainID: "0x1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.RequestImport(ctx, "https://a.b", ImportRequest{Accounts: []common.Address{{2}}})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, seen, 2)
	assert.Equal(t, pending.KindChain, seen[0].Kind)
	require.NotNil(t, seen[0].Chain)
	assert.Equal(t, "0x1", seen[0].Chain.ChainID)
	assert.Equal(t, pending.KindImport, seen[1].Kind)
	require.NotNil(t, seen[1].Import)
	assert.Len(t, seen[1].Import.Accounts, 1)
}

func TestServiceLaunchFailureCancels(t *testing.T) {
	reg := pending.NewRegistry()
	svc := NewService(reg, LauncherFunc(func(context.Context, Prompt) error {
		return errors.New("no display")
	}), time.Minute)

	_, err := svc.RequestSignature(context.Background(), "https://a.b", SignatureRequest{Method: "personal_sign"})
	require.Error(t, err)
	assert.Zero(t, reg.Len())
}

func TestServiceTimeout(t *testing.T) {
	reg := pending.NewRegistry()
	svc := NewService(reg, LauncherFunc(func(context.Context, Prompt) error { return nil }), 20*time.Millisecond)

	ok, err := svc.RequestTransaction(context.Background(), "https://a.b", TxSummary{ChainID: "0x1"})
	require.ErrorIs(t, err, pending.ErrExpired)
	assert.False(t, ok)
}

func TestPendingListsPrompts(t *testing.T) {
	reg := pending.NewRegistry()
	launched := make(chan Prompt, 1)
	svc := NewService(reg, LauncherFunc(func(_ context.Context, p Prompt) error {
		launched <- p
		return nil
	}), time.Minute)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = svc.RequestSignature(context.Background(), "https://a.b", SignatureRequest{Method: "eth_sign", Message: "hi"})
	}()

	p := <-launched
	list := svc.Pending()
	require.Len(t, list, 1)
	assert.Equal(t, p.RequestID, list[0].RequestID)
	require.NotNil(t, list[0].Signature)
	assert.Equal(t, "hi", list[0].Signature.Message)

	assert.True(t, svc.Resolve(p.RequestID, false))
	assert.False(t, svc.Resolve(p.RequestID, false))
	wg.Wait()
}

func TestBrowserLauncherURL(t *testing.T) {
	var got string
	l := BrowserLauncher{
		BaseURL: "http://127.0.0.1:6137",
		Open: func(_ context.Context, u string) error {
			got = u
			return nil
		},
	}
	require.NoError(t, l.Launch(context.Background(), Prompt{RequestID: "abc"}))
	assert.Equal(t, "http://127.0.0.1:6137/approve?id=abc", got)

	l.UIToken = "tok-123"
	require.NoError(t, l.Launch(context.Background(), Prompt{RequestID: "abc"}))
	assert.Equal(t, "http://127.0.0.1:6137/approve?id=abc#ui=tok-123", got)
}
