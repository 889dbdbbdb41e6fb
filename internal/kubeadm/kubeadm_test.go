package kubeadm

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/imamik/kubestrap/internal/platform/exec"
)

func testOptions() Options {
	return Options{
		ClusterName:       "lab",
		NodeName:          "cp-1",
		AdvertiseAddress:  "10.0.0.10",
		KubernetesVersion: "v1.31.2",
		PodCIDR:           "192.168.0.0/16",
		ServiceCIDR:       "10.96.0.0/12",
		KubeconfigPath:    "/root/.kube/config",
	}
}

const joinOutput = "kubeadm join 10.0.0.10:6443 --token abcdef.0123456789abcdef --discovery-token-ca-cert-hash sha256:1234\n"

func TestRenderConfig(t *testing.T) {
	t.Parallel()
	data, err := RenderConfig(testOptions())
	require.NoError(t, err)

	docs := bytes.Split(data, []byte("---\n"))
	require.Len(t, docs, 3)

	var initCfg map[string]any
	require.NoError(t, yaml.Unmarshal(docs[0], &initCfg))
	assert.Equal(t, "kubeadm.k8s.io/v1beta4", initCfg["apiVersion"])
	assert.Equal(t, "InitConfiguration", initCfg["kind"])
	assert.Equal(t, map[string]any{"advertiseAddress": "10.0.0.10", "bindPort": float64(6443)}, initCfg["localAPIEndpoint"])
	assert.Equal(t, map[string]any{"name": "cp-1", "criSocket": DefaultCRISocket}, initCfg["nodeRegistration"])

	var clusterCfg map[string]any
	require.NoError(t, yaml.Unmarshal(docs[1], &clusterCfg))
	assert.Equal(t, "ClusterConfiguration", clusterCfg["kind"])
	assert.Equal(t, "v1.31.2", clusterCfg["kubernetesVersion"])
	assert.Equal(t, "lab", clusterCfg["clusterName"])
	assert.NotContains(t, clusterCfg, "controlPlaneEndpoint")
	assert.Equal(t, map[string]any{"podSubnet": "192.168.0.0/16", "serviceSubnet": "10.96.0.0/12"}, clusterCfg["networking"])

	var kubeletCfg map[string]any
	require.NoError(t, yaml.Unmarshal(docs[2], &kubeletCfg))
	assert.Equal(t, "KubeletConfiguration", kubeletCfg["kind"])
	assert.Equal(t, "systemd", kubeletCfg["cgroupDriver"])
}

func TestRenderConfig_Validation(t *testing.T) {
	t.Parallel()
	opts := testOptions()
	opts.KubernetesVersion = ""
	_, err := RenderConfig(opts)
	assert.Error(t, err)

	opts = testOptions()
	opts.PodCIDR = ""
	_, err = RenderConfig(opts)
	assert.Error(t, err)

	opts = testOptions()
	opts.ControlPlaneEndpoint = "api.lab.internal:6443"
	opts.AdvertiseAddress = ""
	data, err := RenderConfig(opts)
	require.NoError(t, err)
	assert.Contains(t, string(data), "controlPlaneEndpoint: api.lab.internal:6443")
	assert.NotContains(t, string(data), "advertiseAddress")
}

// newNode returns a mock node where kubeadm init creates admin.conf.
func newNode() *exec.MockRunner {
	r := exec.NewMockRunner()
	r.OnFunc("kubeadm init", func(string) (string, error) {
		err := r.WriteFile(context.Background(), AdminConfPath, []byte("admin-kubeconfig"), 0o600)
		return "Your Kubernetes control-plane has initialized successfully!", err
	})
	r.On("kubeadm token create", "W1018 warning line\n"+joinOutput, nil)
	return r
}

func TestInit_FreshNode(t *testing.T) {
	t.Parallel()
	r := newNode()
	local := exec.NewMockRunner()

	opts := testOptions()
	opts.Local = local
	opts.JoinCommandPath = "/root/.kube/join-command"

	require.NoError(t, New(r, opts, logr.Discard()).Init(context.Background()))

	assert.Contains(t, string(r.Files[ConfigPath]), "kind: InitConfiguration")
	assert.Equal(t, 0o600, int(r.Modes[ConfigPath]))
	assert.True(t, r.Ran("systemctl enable --now kubelet"))
	assert.True(t, r.Ran("kubeadm init --config "+ConfigPath))
	assert.Equal(t, "admin-kubeconfig", string(local.Files["/root/.kube/config"]))
	assert.Equal(t, strings.TrimSpace(joinOutput)+"\n", string(local.Files["/root/.kube/join-command"]))
	assert.Empty(t, local.Commands)
}

func TestInit_AlreadyInitialized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newNode()
	cp := New(r, testOptions(), logr.Discard())

	require.NoError(t, cp.Init(ctx))
	require.NoError(t, cp.Init(ctx))

	assert.Equal(t, 1, r.Count("kubeadm init"), "kubeadm init must run only once")
	assert.Equal(t, "admin-kubeconfig", string(r.Files["/root/.kube/config"]), "kubeconfig is copied on the node when no local runner is set")
	assert.False(t, r.Ran("kubeadm token create"))
}

func TestInit_Failure(t *testing.T) {
	t.Parallel()
	r := exec.NewMockRunner().Fail("kubeadm init", 1, "[ERROR Swap]: running with swap on is not supported")

	err := New(r, testOptions(), logr.Discard()).Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kubeadm init failed")
	assert.Contains(t, err.Error(), "ERROR Swap")
	assert.NotContains(t, r.Files, "/root/.kube/config")
}

func TestJoinCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	join, err := New(newNode(), testOptions(), logr.Discard()).JoinCommand(ctx)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(joinOutput), join)

	r := exec.NewMockRunner().On("kubeadm token create", "error: not a control plane\n", nil)
	_, err = New(r, testOptions(), logr.Discard()).JoinCommand(ctx)
	assert.Error(t, err)
}

func TestKubeconfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newNode()
	cp := New(r, testOptions(), logr.Discard())

	_, err := cp.Kubeconfig(ctx)
	require.Error(t, err)

	require.NoError(t, cp.Init(ctx))
	data, err := cp.Kubeconfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin-kubeconfig", string(data))
}
