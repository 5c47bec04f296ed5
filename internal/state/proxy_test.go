package state

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toString(r Result[int, ReadError]) Result[string, ReadError] {
	return Map(r, strconv.Itoa)
}

func fromString(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func TestProxy_MirrorsUpstream(t *testing.T) {
	up := NewSync(okInt(1))
	p := NewProxy(up, toString)

	assert.False(t, up.InUse())
	r := record[string, ReadError](p, true)
	assert.True(t, up.InUse())
	assert.Equal(t, []string{"1"}, r.values())

	up.SetOk(2)
	assert.Equal(t, []string{"1", "2"}, r.values())

	p.Unsubscribe(r.cb)
	assert.False(t, up.InUse())
}

func TestProxy_ThenReadsThroughWhenIdle(t *testing.T) {
	up := NewSync(okInt(5))
	p := NewProxy(up, toString)

	assert.Equal(t, "5", readNow[string, ReadError](t, p).Value())
	assert.False(t, up.InUse())
}

func TestProxy_ReadOnlyRejectsWrites(t *testing.T) {
	p := NewProxy(NewSync(okInt(1), WithPassThrough()), toString)

	err := p.WriteSync("2")
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, CodeNotWritable, we.Code)
}

func TestProxy_WritesGoUpstream(t *testing.T) {
	up := NewSync(okInt(1),
		WithPassThrough(),
		WithLimit(func(v int) int { return min(v, 100) }),
		WithCheck(func(v int) string {
			if v%2 != 0 {
				return "must be even"
			}
			return ""
		}),
	)
	p := NewProxyWrite(up, toString, fromString)

	require.NoError(t, p.WriteSync("42"))
	assert.Equal(t, 42, up.GetOk())

	assert.Equal(t, "100", p.Limit("500"))
	assert.Equal(t, "must be even", p.Check("3"))

	err, _ := p.Write("7").Value()
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, CodeInvalid, we.Code)
}

func TestProxy_SetStateSwitchesUpstream(t *testing.T) {
	first := NewSync(okInt(1))
	second := NewSync(okInt(2))
	p := NewProxy(first, toString)
	r := record[string, ReadError](p, true)

	p.SetState(second)
	assert.False(t, first.InUse())
	assert.True(t, second.InUse())
	assert.Equal(t, []string{"1", "2"}, r.values())

	first.SetOk(10)
	second.SetOk(20)
	assert.Equal(t, []string{"1", "2", "20"}, r.values())
}

func TestProxy_SetTransform(t *testing.T) {
	up := NewSync(okInt(3), WithPassThrough())
	p := NewProxyWrite(up, toString, fromString)
	r := record[string, ReadError](p, true)

	p.SetTransform(func(v Result[int, ReadError]) Result[string, ReadError] {
		return Map(v, func(n int) string { return strconv.Itoa(n) + "!" })
	}, nil)

	assert.Equal(t, []string{"3", "3!"}, r.values())
	assert.Error(t, p.WriteSync("4"))
}
