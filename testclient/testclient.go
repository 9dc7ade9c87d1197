// Package testclient runs tests against the stellar test network, either
// live or replaying recorded horizon responses.
package testclient

import (
	"encoding/json"
	"flag"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/keybase/vcr"
	"github.com/kinecosystem/kinnet/stellarnetwork"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/require"
)

// FriendbotURL funds test network accounts.
const FriendbotURL = "https://friendbot.stellar.org/?addr="

var live = flag.Bool("live", false, "use test server, do not update testdata")
var record = flag.Bool("record", false, "use test server, update testdata")

var tvcr *vcr.VCR

// Config contains the account seeds for the test users.
type Config struct {
	AliceSeed string
	BobSeed   string
}

// Helper makes managing the test users and state easier.
type Helper struct {
	Config *Config
	Alice  *keypair.Full
	Bob    *keypair.Full
}

// NewHelper creates a new Helper.
func NewHelper() *Helper {
	return &Helper{}
}

func (h *Helper) setConfig(t *testing.T, c *Config) {
	h.Config = c
	h.Alice = fullFromSeed(t, c.AliceSeed)
	h.Bob = fullFromSeed(t, c.BobSeed)
}

// SetState changes the directory where the http responses are stored.
// If record is on, it will clear out any existing files in the directory.
func (h *Helper) SetState(t *testing.T, name string) {
	dir := filepath.Join("testdata", name)
	require.NoError(t, os.MkdirAll(dir, 0755))

	conf := loadConfig(t, name)

	if *record {
		existing, err := filepath.Glob(filepath.Join(dir, "*.vcr"))
		require.NoError(t, err)
		for _, e := range existing {
			os.Remove(e)
		}
	}

	h.setConfig(t, conf)
	tvcr.SetDir(dir)
}

// Replaying reports whether requests are served from recorded responses.
func Replaying() bool {
	return !*live && !*record
}

func testClient(t *testing.T, live, record bool) (*horizonclient.Client, *vcr.VCR) {
	v := vcr.New("testdata")
	if record {
		t.Logf("recording http requests")
		v.Record()
	} else if live {
		t.Logf("live http requests")
		v.Live()
	} else {
		t.Logf("playing recorded http requests")
	}

	return &horizonclient.Client{
		HorizonURL: stellarnetwork.TestNetwork.HorizonURL,
		HTTP:       v,
	}, v
}

func configFile(subdir string) string {
	return filepath.Join("testdata", subdir, "config.json")
}

func loadConfig(t *testing.T, subdir string) *Config {
	var conf Config
	filename := configFile(subdir)

	if *live || *record {
		// make new key pairs since this is live or recording new live data
		conf.AliceSeed = newSeed(t)
		conf.BobSeed = newSeed(t)

		if *record {
			// recording, so save key pairs
			data, err := json.Marshal(conf)
			require.NoError(t, err)
			t.Logf("saving config file %s", filename)
			require.NoError(t, ioutil.WriteFile(filename, data, 0644))
		}
	} else {
		t.Logf("loading config file %s", filename)
		data, err := ioutil.ReadFile(filename)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &conf))
	}

	return &conf
}

// Setup is the primary entry point for testclient.  It creates a Helper
// and the horizon client. When replaying without recorded data for
// state, the test is skipped.
func Setup(t *testing.T, state string) (*Helper, *horizonclient.Client, stellarnetwork.StellarNetwork) {
	if Replaying() {
		if _, err := os.Stat(configFile(state)); err != nil {
			t.Skipf("no recorded responses in %s; run with -record", filepath.Dir(configFile(state)))
		}
	}

	var client *horizonclient.Client
	client, tvcr = testClient(t, *live, *record)

	h := NewHelper()
	h.SetState(t, state)

	return h, client, stellarnetwork.TestNetwork
}

// GetTestLumens will use the friendbot to get some lumens into kp's account.
// If not record or live, it is a no-op.
func GetTestLumens(t *testing.T, kp keypair.KP) {
	if Replaying() {
		return
	}
	t.Logf("getting test lumens from friendbot for %s", kp.Address())
	resp, err := http.Get(FriendbotURL + kp.Address())
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	t.Logf("friendbot status: %s", resp.Status)
	t.Logf("friendbot body: %s", body)
}

func fullFromSeed(t *testing.T, seed string) *keypair.Full {
	kp, err := keypair.ParseFull(seed)
	require.NoError(t, err)
	return kp
}

func newSeed(t *testing.T) string {
	kp, err := keypair.Random()
	require.NoError(t, err)
	return kp.Seed()
}
