package kubeconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

func testConfig() *api.Config {
	config := api.NewConfig()
	config.Clusters["prod"] = &api.Cluster{Server: "https://10.0.0.1:6443"}
	config.Clusters["staging"] = &api.Cluster{
		Server:                "https://10.0.0.2:6443",
		InsecureSkipTLSVerify: true,
	}
	config.AuthInfos["prod-admin"] = &api.AuthInfo{Token: "secret"}
	config.AuthInfos["staging-admin"] = &api.AuthInfo{
		Exec: &api.ExecConfig{
			APIVersion: "client.authentication.k8s.io/v1beta1",
			Command:    "aws",
			Args:       []string{"eks", "get-token", "--cluster-name", "staging"},
		},
	}
	config.Contexts["prod"] = &api.Context{Cluster: "prod", AuthInfo: "prod-admin"}
	config.Contexts["staging"] = &api.Context{
		Cluster:   "staging",
		AuthInfo:  "staging-admin",
		Namespace: "default",
	}
	config.CurrentContext = "prod"
	return config
}

func writeFixture(t *testing.T, config *api.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, clientcmd.WriteToFile(*config, path))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		store := NewStore()
		_, err := store.Load(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config")
		require.NoError(t, os.WriteFile(path, []byte("{not yaml: ["), 0o600))
		store := NewStore()
		_, err := store.Load(path)
		var parseErr *ParseError
		assert.ErrorAs(t, err, &parseErr)
	})

	t.Run("valid config", func(t *testing.T) {
		path := writeFixture(t, testConfig())
		store := NewStore()
		doc, err := store.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "prod", doc.CurrentContext)
		assert.Len(t, doc.Contexts, 2)
		assert.Equal(t, "aws", doc.AuthInfos["staging-admin"].Exec.Command)
	})
}

func TestValidate(t *testing.T) {
	store := NewStore()

	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, store.Validate(testConfig()))
	})

	t.Run("dangling cluster ref", func(t *testing.T) {
		doc := testConfig()
		doc.Contexts["broken"] = &api.Context{Cluster: "ghost", AuthInfo: "prod-admin"}
		err := store.Validate(doc)
		var dangling *DanglingReferenceError
		require.ErrorAs(t, err, &dangling)
		assert.Equal(t, "broken", dangling.Context)
		assert.Equal(t, "cluster", dangling.Kind)
		assert.Equal(t, "ghost", dangling.Name)
	})

	t.Run("dangling user ref", func(t *testing.T) {
		doc := testConfig()
		doc.Contexts["broken"] = &api.Context{Cluster: "prod", AuthInfo: "ghost"}
		err := store.Validate(doc)
		var dangling *DanglingReferenceError
		require.ErrorAs(t, err, &dangling)
		assert.Equal(t, "user", dangling.Kind)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	original := testConfig()
	original.Extensions["other-tool"] = &runtime.Unknown{
		Raw:         []byte(`{"owner":"someone-else"}`),
		ContentType: "application/json",
	}
	path := writeFixture(t, original)

	store := NewStore()
	doc, err := store.Load(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(doc, path))

	reloaded, err := store.Load(path)
	require.NoError(t, err)

	assert.Equal(t, doc.CurrentContext, reloaded.CurrentContext)
	assert.Equal(t, doc.Clusters["prod"].Server, reloaded.Clusters["prod"].Server)
	assert.Equal(t, doc.AuthInfos["staging-admin"].Exec.Args, reloaded.AuthInfos["staging-admin"].Exec.Args)
	assert.Contains(t, reloaded.Extensions, "other-tool")
}

func TestLoadErrorClassification(t *testing.T) {
	var parseErr *ParseError

	permission := fmt.Errorf("open /etc/kube/config: %w", fs.ErrPermission)
	err := wrapLoadError("/etc/kube/config", permission)
	assert.False(t, errors.As(err, &parseErr), "permission failure is not a parse failure")
	assert.ErrorIs(t, err, fs.ErrPermission)

	err = wrapLoadError("/etc/kube/config", errors.New("yaml: line 3: mapping values are not allowed"))
	assert.True(t, errors.As(err, &parseErr))
}

func TestSaveValidationFailureLeavesFileUntouched(t *testing.T) {
	path := writeFixture(t, testConfig())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	doc := testConfig()
	doc.Contexts["broken"] = &api.Context{Cluster: "ghost", AuthInfo: "prod-admin"}

	store := NewStore()
	err = store.Save(doc, path)
	var dangling *DanglingReferenceError
	require.ErrorAs(t, err, &dangling)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSaveWriteFailureLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, clientcmd.WriteToFile(*testConfig(), path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// Fail temp file creation through the seam; a permission-based
	// setup would not hold when the suite runs as root.
	original := osCreateTemp
	osCreateTemp = func(dir, pattern string) (*os.File, error) {
		return nil, errors.New("disk full")
	}
	t.Cleanup(func() { osCreateTemp = original })

	store := NewStore()
	store.backupDone = true
	err = store.Save(testConfig(), path)
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr), "expected WriteError, got %v", err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSaveBackupOncePerProcess(t *testing.T) {
	path := writeFixture(t, testConfig())

	store := NewStore()
	store.now = func() time.Time {
		return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	}

	doc := testConfig()
	require.NoError(t, store.Save(doc, path))
	require.NoError(t, store.Save(doc, path))

	backups, err := filepath.Glob(path + ".bak-*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, path+".bak-20240301-123000", backups[0])
}

func TestDeepCopyIsIndependent(t *testing.T) {
	doc := testConfig()
	snapshot := DeepCopy(doc)
	doc.CurrentContext = "staging"
	delete(doc.Contexts, "prod")

	assert.Equal(t, "prod", snapshot.CurrentContext)
	assert.Contains(t, snapshot.Contexts, "prod")
}
