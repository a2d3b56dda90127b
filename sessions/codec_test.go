package sessions_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-cda-server/sessions"
)

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := sessions.NewCodec("")
	require.Error(t, err)
}

func TestCodecRoundTrip(t *testing.T) {
	codec, err := sessions.NewCodec(testSecret)
	require.NoError(t, err)

	in := sessions.Payload{AuthUserID: "42", UserAgent: "Mozilla/5.0", LoginAt: fixedNow}
	data, err := codec.Encode(in)
	require.NoError(t, err)

	out, decodeErr := codec.Decode(sessions.Session{Key: "k", Data: data})
	require.Nil(t, decodeErr)
	require.Equal(t, in.AuthUserID, out.AuthUserID)
	require.Equal(t, in.UserAgent, out.UserAgent)
	require.True(t, in.LoginAt.Equal(out.LoginAt))
	require.True(t, out.Authenticated())
}

func TestCodecWireFormat(t *testing.T) {
	codec, err := sessions.NewCodec(testSecret)
	require.NoError(t, err)

	data, err := codec.Encode(sessions.Payload{AuthUserID: "7"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)

	signature, body, found := strings.Cut(string(raw), ":")
	require.True(t, found)
	require.Len(t, signature, 64)
	require.JSONEq(t, `{"_auth_user_id":"7"}`, body)
}

func TestCodecRejectsTampering(t *testing.T) {
	codec, err := sessions.NewCodec(testSecret)
	require.NoError(t, err)

	data, err := codec.Encode(sessions.Payload{AuthUserID: "1"})
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	signature, _, _ := strings.Cut(string(raw), ":")

	tampered := base64.StdEncoding.EncodeToString([]byte(signature + `:{"_auth_user_id":"2"}`))

	cases := map[string]string{
		"not base64":   "***",
		"no separator": base64.StdEncoding.EncodeToString([]byte("abcdef")),
		"bad json":     base64.StdEncoding.EncodeToString([]byte(signature + ":{")),
		"swapped body": tampered,
		"empty":        "",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, decodeErr := codec.Decode(sessions.Session{Key: "k-" + name, Data: data})
			require.NotNil(t, decodeErr)
			require.Equal(t, "k-"+name, decodeErr.Key)
			require.Contains(t, decodeErr.Error(), "k-"+name)
		})
	}
}

func TestDecodeAllKeepsFailures(t *testing.T) {
	codec, err := sessions.NewCodec(testSecret)
	require.NoError(t, err)

	good, err := codec.Encode(sessions.Payload{AuthUserID: "1"})
	require.NoError(t, err)

	decoded := codec.DecodeAll([]sessions.Session{
		{Key: "good", Data: good, ExpireAt: fixedNow.Add(time.Hour)},
		{Key: "bad", Data: "bad", ExpireAt: fixedNow.Add(time.Hour)},
	})
	require.Len(t, decoded, 2)
	require.True(t, decoded[0].OK())
	require.Equal(t, "1", decoded[0].Payload.AuthUserID)
	require.False(t, decoded[1].OK())
	require.Equal(t, "bad", decoded[1].Err.Key)
}

func TestSessionActive(t *testing.T) {
	s := sessions.Session{Key: "k", ExpireAt: fixedNow}
	require.True(t, s.Active(fixedNow))
	require.True(t, s.Active(fixedNow.Add(-time.Second)))
	require.False(t, s.Active(fixedNow.Add(time.Nanosecond)))
}

func TestNewKey(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key, err := sessions.NewKey()
		require.NoError(t, err)
		require.Len(t, key, 32)
		require.Regexp(t, `^[a-z0-9]+$`, key)
		require.False(t, seen[key])
		seen[key] = true
	}
}
