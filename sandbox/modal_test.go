package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/modal-labs/libmodal/modal-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type foreignVolume struct{}

func (foreignVolume) Name() string { return "foreign" }

func TestBuildCreateParams(t *testing.T) {
	t.Run("UnsetFieldsStayZero", func(t *testing.T) {
		params, err := buildCreateParams(CreateRequest{UnencryptedPorts: []int{22}})
		require.NoError(t, err)

		assert.Equal(t, []int{22}, params.UnencryptedPorts)
		assert.Zero(t, params.Timeout)
		assert.Empty(t, params.GPU)
		assert.Zero(t, params.CPU)
		assert.Zero(t, params.MemoryMiB)
		assert.Nil(t, params.Volumes)
	})

	t.Run("SetFieldsAreCopied", func(t *testing.T) {
		timeout := 2 * time.Hour
		gpu := "A100-80GB:2"
		cpu := 8.0
		memory := 32 * 1024
		vol := &modalVolume{name: "data", volume: &modal.Volume{VolumeID: "vo-123"}}

		params, err := buildCreateParams(CreateRequest{
			UnencryptedPorts: []int{22},
			Timeout:          &timeout,
			GPU:              &gpu,
			CPU:              &cpu,
			MemoryMiB:        &memory,
			Volumes:          map[string]Volume{"/vol/data": vol},
		})
		require.NoError(t, err)

		assert.Equal(t, timeout, params.Timeout)
		assert.Equal(t, gpu, params.GPU)
		assert.Equal(t, cpu, params.CPU)
		assert.Equal(t, memory, params.MemoryMiB)
		require.Contains(t, params.Volumes, "/vol/data")
		assert.Equal(t, "vo-123", params.Volumes["/vol/data"].VolumeID)
	})

	t.Run("ForeignVolumeRejected", func(t *testing.T) {
		_, err := buildCreateParams(CreateRequest{
			Volumes: map[string]Volume{"/vol/x": foreignVolume{}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not created by the modal platform")
	})
}

func TestEndpointString(t *testing.T) {
	assert.Equal(t, "r3.modal.host:41234", Endpoint{Host: "r3.modal.host", Port: 41234}.String())
}

func TestModalSandboxDetach(t *testing.T) {
	handle := &modalSandbox{sb: &modal.Sandbox{SandboxID: "sb-123"}, tunnelTimeout: time.Minute}
	ctx := context.Background()

	assert.Equal(t, "sb-123", handle.ID())
	require.NoError(t, handle.Detach())
	require.NoError(t, handle.Detach())
	assert.Equal(t, "sb-123", handle.ID())

	// A detached handle never reaches the SDK
	_, err := handle.Poll(ctx)
	require.ErrorIs(t, err, errDetached)
	require.ErrorIs(t, handle.Terminate(ctx), errDetached)
	_, err = handle.Wait(ctx)
	require.ErrorIs(t, err, errDetached)
	require.ErrorIs(t, handle.Exec(ctx, []string{"true"}), errDetached)
	_, err = handle.Tunnel(ctx, 22)
	require.ErrorIs(t, err, errDetached)
	assert.Contains(t, err.Error(), "sb-123")
}
