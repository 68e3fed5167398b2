package wallet_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet/wallettest"
)

func TestRecoverAddressRoundTrip(t *testing.T) {
	signer := wallettest.NewSigner()
	msg := []byte("Please sign this message to prove you own this wallet")
	sig, err := signer.SignText(context.Background(), msg)
	require.NoError(t, err)

	got, err := wallet.RecoverAddress(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), got)

	other, err := wallet.RecoverAddress([]byte("different"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, signer.Address(), other)

	_, err = wallet.RecoverAddress(msg, sig[:10])
	assert.Error(t, err)
}

func TestExternalProviderWithoutEndpoint(t *testing.T) {
	p, err := wallet.NewExternalProvider("")
	require.NoError(t, err)
	_, err = p.SignerFor(context.Background(), common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, wallet.ErrNoSigner)
}

func TestKeyedMutexSerialisesPerAccount(t *testing.T) {
	km := wallet.NewKeyedMutex()
	addr := common.HexToAddress("0xaa")
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), addr)
			require.NoError(t, err)
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	km := wallet.NewKeyedMutex()
	addr := common.HexToAddress("0xbb")
	unlock, err := km.Lock(context.Background(), addr)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, addr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := km.Lock(context.Background(), common.HexToAddress("0xcc"))
	require.NoError(t, err)
	other()
}
