package lotto

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveAddressesIsDeterministic(t *testing.T) {
	authority := newKey(t)
	a, err := DeriveAddresses(DefaultProgramID, authority, 42)
	require.NoError(t, err)
	b, err := DeriveAddresses(DefaultProgramID, authority, 42)
	require.NoError(t, err)
	require.Equal(t, a, b)

	other, err := DeriveAddresses(DefaultProgramID, authority, 43)
	require.NoError(t, err)
	require.NotEqual(t, a.Round, other.Round)
	require.Equal(t, a.Treasury, other.Treasury)
	require.Equal(t, a.TreasuryVault, other.TreasuryVault)
	require.NotEqual(t, a.Treasury, a.TreasuryVault)

	require.NoError(t, verifyAddress(DefaultProgramID, a.Round, roundSeeds(authority, RoundSeedBytes(42)), a.RoundBump))
	require.ErrorIs(t, verifyAddress(DefaultProgramID, other.Round, roundSeeds(authority, RoundSeedBytes(42)), a.RoundBump), ErrConstraintSeeds)
}

func TestAddressesAreScopedByProgram(t *testing.T) {
	authority := newKey(t)
	programID := newKey(t)
	a, err := DeriveAddresses(DefaultProgramID, authority, 1)
	require.NoError(t, err)
	b, err := DeriveAddresses(programID, authority, 1)
	require.NoError(t, err)
	require.NotEqual(t, a.Round, b.Round)
	require.NotEqual(t, a.TreasuryVault, b.TreasuryVault)
}

func TestDerivedAddressesAreOffCurve(t *testing.T) {
	authority := newKey(t)
	addrs, err := DeriveAddresses(DefaultProgramID, authority, 9)
	require.NoError(t, err)
	require.False(t, addrs.TreasuryVault.IsOnCurve())
	require.True(t, authority.IsOnCurve())
}

func TestEntryAddressesDependOnNonce(t *testing.T) {
	round := newKey(t)
	entrant := newKey(t)
	first, _, err := FindEntryAddress(DefaultProgramID, round, entrant, 0)
	require.NoError(t, err)
	second, _, err := FindEntryAddress(DefaultProgramID, round, entrant, 1)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestRoundSeedBytesLittleEndian(t *testing.T) {
	require.Equal(t, [8]byte{1, 0, 0, 0, 0, 0, 0, 0}, RoundSeedBytes(1))
	require.Equal(t, [8]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, RoundSeedBytes(math.MaxUint64))
}

func TestTreasuryCut(t *testing.T) {
	cases := []struct {
		pot  uint64
		bps  uint16
		want uint64
	}{
		{pot: 6_000, bps: 500, want: 300},
		{pot: 999, bps: 1, want: 0},
		{pot: 10_001, bps: 1, want: 1},
		{pot: 1_000, bps: 0, want: 0},
		{pot: 1_000, bps: MaxBps, want: 1_000},
		{pot: math.MaxUint64, bps: MaxBps, want: math.MaxUint64},
	}
	for _, tc := range cases {
		got, err := TreasuryCut(tc.pot, tc.bps)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "pot=%d bps=%d", tc.pot, tc.bps)
	}
	_, err := TreasuryCut(1, MaxBps+1)
	require.ErrorIs(t, err, ErrInvalidRetainedBps)
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := checkedAdd(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrMathOverflow)
	_, err = checkedSub(1, 2)
	require.ErrorIs(t, err, ErrMathOverflow)
	_, err = checkedMul(math.MaxUint64/2+1, 2)
	require.ErrorIs(t, err, ErrMathOverflow)
	_, err = checkedAdd32(math.MaxUint32, 1)
	require.ErrorIs(t, err, ErrMathOverflow)

	v, err := checkedMul(1_000, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(3_000), v)
}

func TestErrorRegistry(t *testing.T) {
	err, ok := ErrorByCode(6023)
	require.True(t, ok)
	require.Same(t, ErrInvalidTicketCount, err)
	require.Equal(t, KindValidation, KindOf(ErrInvalidTicketCount))
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, "not_found", KindNotFound.String())
}

func TestRoundStatusRoundTrip(t *testing.T) {
	for s := RoundPending; s <= RoundCancelled; s++ {
		parsed, err := ParseRoundStatus(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
	require.False(t, RoundStatus(42).Valid())
	_, err := ParseRoundStatus("bogus")
	require.Error(t, err)
}
