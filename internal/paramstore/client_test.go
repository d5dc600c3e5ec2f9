package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	value   *string
	err     error
	gotName string
	decrypt bool
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if in.Name != nil {
		f.gotName = *in.Name
	}
	if in.WithDecryption != nil {
		f.decrypt = *in.WithDecryption
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: f.value}}, nil
}

func TestNewRejectsNilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGetParameterDecrypts(t *testing.T) {
	v := `{"token":"sk-test"}`
	api := &fakeSSM{value: &v}
	c, err := New(api)
	require.NoError(t, err)

	got, err := c.GetParameter(context.Background(), " /callrelay/openai-key ")
	require.NoError(t, err)
	require.Equal(t, v, got)
	require.Equal(t, "/callrelay/openai-key", api.gotName)
	require.True(t, api.decrypt)
}

func TestGetParameterErrors(t *testing.T) {
	c, err := New(&fakeSSM{err: errors.New("throttled")})
	require.NoError(t, err)

	_, err = c.GetParameter(context.Background(), "/x")
	require.ErrorContains(t, err, "throttled")

	_, err = c.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "name is required")

	c, err = New(&fakeSSM{})
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "/x")
	require.ErrorContains(t, err, "missing value")
}

func TestSecretValue(t *testing.T) {
	got, err := SecretValue(`{"token":"sk-json"}`)
	require.NoError(t, err)
	require.Equal(t, "sk-json", got)

	got, err = SecretValue("  sk-raw\n")
	require.NoError(t, err)
	require.Equal(t, "sk-raw", got)

	_, err = SecretValue(`{"other":"x"}`)
	require.ErrorContains(t, err, "token is empty")

	_, err = SecretValue(`{"broken`)
	require.ErrorContains(t, err, "unmarshal")

	_, err = SecretValue("")
	require.Error(t, err)
}
