package main

import (
	"flag"
	"fmt"
	"io/fs"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/sushantsondhi/raft-col733/benchmarks"
	"github.com/sushantsondhi/raft-col733/common"
	"github.com/sushantsondhi/raft-col733/kvstore"
	"github.com/sushantsondhi/raft-col733/kvstore/client"
	"github.com/sushantsondhi/raft-col733/persistent"
	"github.com/sushantsondhi/raft-col733/raft"
	"github.com/sushantsondhi/raft-col733/rpc"
)

// peerConfig is the YAML-friendly form of a common.PeerAddress; PeerId's
// canonical string form round-trips through common.ParsePeerId.
type peerConfig struct {
	ID string
	Address string
}

type clusterConfig struct {
	GroupId string
	Cluster []peerConfig
	HeartbeatTimeout int // In milliseconds
	ElectionTimeout int // In milliseconds
	InstallSnapshotEnabled *bool
	RetryCacheCapacity int
	RetryCacheExpirySecs int
}

func (cfg clusterConfig) peers() ([]common.PeerAddress, error) {
	var peers []common.PeerAddress
	for _, p := range cfg.Cluster {
		id, err := common.ParsePeerId(p.ID)
		if err != nil {
			return nil, err
		}
		peers = append(peers, common.PeerAddress{Id: id, Address: p.Address})
	}
	return peers, nil
}

func (cfg clusterConfig) serverConfig() (raft.ServerConfig, error) {
	groupId, err := common.ParseGroupId(cfg.GroupId)
	if err != nil {
		return raft.ServerConfig{}, err
	}
	peers, err := cfg.peers()
	if err != nil {
		return raft.ServerConfig{}, err
	}
	sc := raft.DefaultServerConfig()
	sc.GroupId = groupId
	sc.Peers = peers
	if cfg.ElectionTimeout > 0 {
		sc.MinElectionTimeout = time.Millisecond * time.Duration(cfg.ElectionTimeout)
		sc.MaxElectionTimeout = 2 * time.Millisecond * time.Duration(cfg.ElectionTimeout)
	}
	if cfg.HeartbeatTimeout > 0 {
		sc.HeartbeatInterval = time.Millisecond * time.Duration(cfg.HeartbeatTimeout)
	}
	if cfg.InstallSnapshotEnabled != nil {
		sc.InstallSnapshotEnabled = *cfg.InstallSnapshotEnabled
	}
	if cfg.RetryCacheCapacity > 0 {
		sc.RetryCacheCapacity = cfg.RetryCacheCapacity
	}
	if cfg.RetryCacheExpirySecs > 0 {
		sc.RetryCacheExpiry = time.Duration(cfg.RetryCacheExpirySecs) * time.Second
	}
	return sc, nil
}

func readClusterConfig(path string) (clusterConfig, error) {
	bytes, err := ioutil.ReadFile(path)
	if err != nil {
		return clusterConfig{}, err
	}
	var cfg clusterConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return clusterConfig{}, err
	}
	return cfg, nil
}

func runServer(args []string) {
	flagset := flag.NewFlagSet("server", flag.ExitOnError)
	configFile := flagset.String("config", "", "YAML file containing cluster & configuration details")
	dataDir := flagset.String("data", ".", "directory to store the server's log/metadata/snapshot databases in")
	index := flagset.Int("me", -1, "Index of this server in the config file")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	cfg, err := readClusterConfig(*configFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	if *index < 0 || *index >= len(cfg.Cluster) {
		fmt.Printf("invalid index: %d (config file specified %d servers only)\n", *index, len(cfg.Cluster))
		os.Exit(2)
	}
	serverConfig, err := cfg.serverConfig()
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	self := serverConfig.Peers[*index]

	logStore, logErr := persistent.CreateDbLogStore(filepath.Join(*dataDir, fmt.Sprintf("%v_logstore.db", self.Id)))
	pStore, pErr := persistent.NewPStore(filepath.Join(*dataDir, fmt.Sprintf("%v_pstore.db", self.Id)))
	snapStore, sErr := persistent.CreateDbSnapshotStore(filepath.Join(*dataDir, fmt.Sprintf("%v_snapstore.db", self.Id)))
	if err := multierr.Combine(logErr, pErr, sErr); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	logger := logrus.New()
	fsm := kvstore.NewKeyValFSM(logger.WithField("peer", self.Id))
	transport := rpc.NewManager(self)

	core, err := raft.NewServerCore(self.Id, serverConfig, logStore, pStore, snapStore, transport, fsm, logger)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	if err := transport.Start(core, core); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	if err := core.Start(); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c
	fmt.Println("Stopping server...")
	if err := multierr.Combine(core.Stop(), transport.Stop()); err != nil {
		fmt.Println(err)
	}
}

func generateConfig(args []string) {
	flagset := flag.NewFlagSet("config", flag.ExitOnError)
	var path, servers string
	var electionTimeout, heartbeatTimeout int
	flagset.StringVar(&path, "file", "config.yaml", "full path of config file to write to")
	flagset.StringVar(&servers, "servers", "localhost:12345,localhost:12346,localhost:12347", "comma-seperated list of server addresses of raft servers")
	flagset.IntVar(&electionTimeout, "electionTimeout", 200, "value of election timeout (in milliseconds)")
	flagset.IntVar(&heartbeatTimeout, "heartbeatTimeout", 50, "value of heartbeat timeout (in milliseconds)")
	installSnapshot := flagset.Bool("installSnapshotEnabled", true, "whether followers that fall behind the log start are sent the snapshot in chunks (true) or only notified of it (false)")
	retryCacheCapacity := flagset.Int("retryCacheCapacity", 10000, "max number of in-flight/recently-completed client requests to remember for at-most-once semantics")
	retryCacheExpirySecs := flagset.Int("retryCacheExpirySeconds", 300, "seconds a completed retry-cache entry is kept before eviction")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	var cfg clusterConfig
	cfg.GroupId = common.NewGroupId().String()
	for _, addr := range strings.Split(servers, ",") {
		cfg.Cluster = append(cfg.Cluster, peerConfig{ID: uuid.New().String(), Address: addr})
	}
	cfg.HeartbeatTimeout = heartbeatTimeout
	cfg.ElectionTimeout = electionTimeout
	cfg.InstallSnapshotEnabled = installSnapshot
	cfg.RetryCacheCapacity = *retryCacheCapacity
	cfg.RetryCacheExpirySecs = *retryCacheExpirySecs

	if bytes, err := yaml.Marshal(cfg); err != nil {
		fmt.Println(err)
		os.Exit(2)
	} else if err := ioutil.WriteFile(path, bytes, fs.ModePerm); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
}

func runClient(args []string) {
	flagset := flag.NewFlagSet("client", flag.ExitOnError)
	configFile := flagset.String("config", "", "YAML file containing cluster details")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	cfg, err := readClusterConfig(*configFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	groupId, err := common.ParseGroupId(cfg.GroupId)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	peers, err := cfg.peers()
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	if err := client.RunCliClient(groupId, peers); err != nil {
		fmt.Println(err)
	}
}

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		fmt.Printf("usage: %s config | server | client...\n", os.Args[0])
		os.Exit(2)
	}
	switch args[0] {
	case "config":
		generateConfig(args[1:])
	case "server":
		runServer(args[1:])
	case "client":
		runClient(args[1:])
	case "bench1":
		benchmarks.BenchmarkClientReadWriteThroughput(args[1:])
	case "bench2":
		benchmarks.BenchmarkServerCatchUpTime(args[1:])
	case "bench3":
		benchmarks.BenchmarkParallelClientThroughput(args[1:])
	default:
		fmt.Printf("unknown sub-command: %s\n", args[0])
		os.Exit(2)
	}
}
