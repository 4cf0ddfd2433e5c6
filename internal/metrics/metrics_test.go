package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveVerify(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveVerify(&chain.Outcome{Visited: 5, ReachedGenesis: true}, nil, time.Millisecond)

	faults := []*chain.BlockError{
		{Kind: chain.ErrHashMismatch, Hash: types.Hash{1}},
		{Kind: chain.ErrChainCycle, Hash: types.Hash{1}},
		{Kind: chain.ErrMalformedBlock, Hash: types.Hash{2}},
	}
	out := &chain.Outcome{Visited: 2, Faults: faults}
	m.ObserveVerify(out, &chain.ChainInvalidError{Invalid: 2, Faults: faults}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues(ResultValid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues(ResultInvalid)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.blocksVerified))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("hash_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("cycle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("malformed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.verifyDuration))
}

func TestVerifyResult(t *testing.T) {
	tests := []struct {
		name string
		out  *chain.Outcome
		err  error
		want string
	}{
		{"valid", &chain.Outcome{ReachedGenesis: true}, nil, ResultValid},
		{"truncated", &chain.Outcome{Truncated: true}, nil, ResultTruncated},
		{"invalid", &chain.Outcome{}, &chain.ChainInvalidError{Invalid: 1}, ResultInvalid},
		{"genesis not found", &chain.Outcome{}, &chain.GenesisNotFoundError{}, ResultGenesisNotFound},
		{"genesis mismatch", &chain.Outcome{}, &chain.GenesisMismatchError{}, ResultGenesisMismatch},
		{"io", nil, errors.New("disk"), ResultError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyResult(tt.out, tt.err))
		})
	}
}

func TestObserveForward(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveForward(nil)
	m.ObserveForward(&chain.ForwardError{})
	m.ObserveForward(errors.New("disk"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.forwards.WithLabelValues(ForwardOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.forwards.WithLabelValues(ForwardMissing)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.forwards.WithLabelValues(ForwardError)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveVerify(&chain.Outcome{}, nil, time.Second)
	m.ObserveForward(nil)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveForward(nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `ledger_forwards_total{result="ok"} 1`))
}
