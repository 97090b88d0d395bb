package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	cmd8  uint8
	cmd16 uint16
	cmd32 uint32
	cmd64 int64
)

func TestWidth(t *testing.T) {
	assert.Equal(t, 1, Width[cmd8]())
	assert.Equal(t, 2, Width[cmd16]())
	assert.Equal(t, 4, Width[cmd32]())
	assert.Equal(t, 8, Width[cmd64]())
}

func TestCodes(t *testing.T) {
	t.Run("uint8", func(t *testing.T) {
		b := AppendCode(nil, cmd8(0xAB))
		assert.Equal(t, []byte{0xAB}, b)
		c, n, err := ReadCode[cmd8](b)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, cmd8(0xAB), c)
	})
	t.Run("uint16 little endian", func(t *testing.T) {
		b := AppendCode(nil, cmd16(0x0102))
		assert.Equal(t, []byte{0x02, 0x01}, b)
		c, n, err := ReadCode[cmd16](b)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, cmd16(0x0102), c)
	})
	t.Run("uint32", func(t *testing.T) {
		b := AppendCode([]byte{0xFF}, cmd32(7))
		assert.Equal(t, []byte{0xFF, 7, 0, 0, 0}, b)
		c, _, err := ReadCode[cmd32](b[1:])
		require.NoError(t, err)
		assert.Equal(t, cmd32(7), c)
	})
	t.Run("negative int64", func(t *testing.T) {
		b := AppendCode(nil, cmd64(-2))
		assert.Len(t, b, 8)
		c, _, err := ReadCode[cmd64](b)
		require.NoError(t, err)
		assert.Equal(t, cmd64(-2), c)
	})
	t.Run("short", func(t *testing.T) {
		_, _, err := ReadCode[cmd32]([]byte{1, 2})
		assert.ErrorIs(t, err, ErrShortMessage)
	})
}

func TestStrings(t *testing.T) {
	long := strings.Repeat("x", 300)

	b := AppendString(nil, "")
	b = AppendString(b, "hello")
	b = AppendString(b, long)

	// 300 needs two bytes of length prefix
	assert.Equal(t, 1+(1+5)+(2+300), len(b))

	got, err := ReadStrings(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, []string{"", "hello", long}, got)

	t.Run("cut", func(t *testing.T) {
		_, err := ReadString(bytes.NewReader(AppendString(nil, "hello")[:3]))
		assert.ErrorIs(t, err, ErrShortMessage)
	})
	t.Run("length beyond input", func(t *testing.T) {
		prefix := binary.AppendUvarint(nil, 1<<24)

		var before, after runtime.MemStats
		runtime.GC()
		runtime.ReadMemStats(&before)

		_, err := ReadString(bytes.NewReader(prefix))
		assert.ErrorIs(t, err, ErrShortMessage)

		_, err = ReadString(bufio.NewReader(bytes.NewReader(append(prefix, "abc"...))))
		assert.ErrorIs(t, err, ErrShortMessage)

		runtime.ReadMemStats(&after)
		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20), "a short input must not allocate the claimed length")
	})
	t.Run("length over limit", func(t *testing.T) {
		_, err := ReadString(bytes.NewReader(binary.AppendUvarint(nil, 1<<30)))
		assert.ErrorIs(t, err, ErrShortMessage)
	})
	t.Run("byte reader", func(t *testing.T) {
		s, err := ReadString(bufio.NewReader(bytes.NewReader(AppendString(nil, long))))
		require.NoError(t, err)
		assert.Equal(t, long, s)
	})
	t.Run("empty reader", func(t *testing.T) {
		_, err := ReadString(bytes.NewReader(nil))
		assert.ErrorIs(t, err, io.EOF)

		s, err := ReadStrings(bytes.NewReader(nil))
		assert.NoError(t, err)
		assert.Empty(t, s)
	})
}

func TestPayloads(t *testing.T) {
	t.Run("bytes and strings", func(t *testing.T) {
		b, err := AppendPayloads(nil, Bytes([]byte{1, 2}), nil, Strings("a"))
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 1, 'a'}, b)
	})

	t.Run("stream is rewound", func(t *testing.T) {
		r := bytes.NewReader([]byte("stream"))
		_, _ = r.ReadByte()
		b, err := AppendPayloads([]byte{9}, Stream(r))
		require.NoError(t, err)
		assert.Equal(t, append([]byte{9}, "stream"...), b)
	})

	t.Run("json", func(t *testing.T) {
		b, err := AppendPayloads([]byte{1}, JSON(map[string]int{"clients": 2}))
		require.NoError(t, err)
		assert.Equal(t, append([]byte{1}, `{"clients":2}`...), b)

		_, err = AppendPayloads(nil, JSON(make(chan int)))
		assert.Error(t, err)
	})

	t.Run("stream error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := AppendPayloads(nil, Stream(failingReader{err: boom}))
		assert.ErrorIs(t, err, boom)
	})
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestRequest(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		msg        func() []byte
		correlated bool
		cmd        cmd16
		payload    []byte
	}{
		{
			name: "with id",
			msg: func() []byte {
				b, _ := AppendRequest(nil, &id, cmd16(3), Bytes([]byte("abc")))
				return b
			},
			correlated: true,
			cmd:        3,
			payload:    []byte("abc"),
		},
		{
			name: "short without id",
			msg: func() []byte {
				b, _ := AppendRequest(nil, nil, cmd16(4), Bytes([]byte("x")))
				return b
			},
			cmd:     4,
			payload: []byte("x"),
		},
		{
			name: "exactly IDSize bytes has no id",
			msg: func() []byte {
				b, _ := AppendRequest(nil, nil, cmd16(5), Bytes(make([]byte, IDSize-2)))
				return b
			},
			cmd:     5,
			payload: make([]byte, IDSize-2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, correlated, cmd, payload, err := DecodeRequest[cmd16](tt.msg())
			require.NoError(t, err)
			assert.Equal(t, tt.correlated, correlated)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.payload, payload)
			if tt.correlated {
				assert.Equal(t, id, gotID)
			} else {
				assert.NotEqual(t, uuid.Nil, gotID)
			}
		})
	}

	t.Run("one byte over IDSize is read as id", func(t *testing.T) {
		msg := bytes.Repeat([]byte{0}, IDSize+1)
		_, correlated, _, _, err := DecodeRequest[cmd8](msg)
		require.NoError(t, err)
		assert.True(t, correlated)
	})

	t.Run("no command", func(t *testing.T) {
		_, _, _, _, err := DecodeRequest[cmd16]([]byte{1})
		assert.ErrorIs(t, err, ErrShortMessage)
	})
}

func TestReplies(t *testing.T) {
	id := uuid.New()

	t.Run("tagged", func(t *testing.T) {
		b := AppendReplyPrefix(nil, true, id, true)
		b = AppendCode(b, cmd8(2))
		b = append(b, "data"...)
		assert.Equal(t, 1+IDSize+1+4, len(b))

		reply, err := DecodeReply[cmd8](b)
		require.NoError(t, err)
		assert.True(t, reply.Correlated)
		assert.Equal(t, id, reply.ID)
		assert.Equal(t, cmd8(2), reply.Result)
		assert.Equal(t, []byte("data"), reply.Payload)
	})

	t.Run("untagged", func(t *testing.T) {
		b := AppendReplyPrefix(nil, true, id, false)
		assert.Equal(t, []byte{0}, b)
		b = AppendCode(b, cmd8(1))

		reply, err := DecodeReply[cmd8](b)
		require.NoError(t, err)
		assert.False(t, reply.Correlated)
		assert.Equal(t, uuid.Nil, reply.ID)
		assert.Equal(t, cmd8(1), reply.Result)
		assert.Empty(t, reply.Payload)
	})

	t.Run("fallback decodes as untagged", func(t *testing.T) {
		reply, err := DecodeReply[cmd16](AppendCode([]byte{0}, cmd16(0xFFFF)))
		require.NoError(t, err)
		assert.False(t, reply.Correlated)
		assert.Equal(t, cmd16(0xFFFF), reply.Result)
	})

	t.Run("without correlation", func(t *testing.T) {
		assert.Empty(t, AppendReplyPrefix(nil, false, id, true))

		reply, err := DecodeUncorrelatedReply[cmd8]([]byte{7, 'x'})
		require.NoError(t, err)
		assert.Equal(t, cmd8(7), reply.Result)
		assert.Equal(t, []byte("x"), reply.Payload)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := DecodeReply[cmd8](nil)
		assert.ErrorIs(t, err, ErrShortMessage)

		_, err = DecodeReply[cmd8]([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrShortMessage)

		_, err = DecodeReply[cmd8]([]byte{2, 0})
		assert.Error(t, err)
	})
}
