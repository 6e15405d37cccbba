package benchmarks

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/sushantsondhi/raft-col733/common"
	"github.com/sushantsondhi/raft-col733/kvstore"
	"github.com/sushantsondhi/raft-col733/persistent"
	"github.com/sushantsondhi/raft-col733/raft"
	"github.com/sushantsondhi/raft-col733/rpc"
)

// peerConfig/config duplicate main's YAML shape; grounded on
// raft-col733 carrying its own copy of the same struct in
// benchmarks/main.go rather than sharing one with the main package.
type peerConfig struct {
	ID string
	Address string
}

type config struct {
	GroupId string
	Cluster []peerConfig
	HeartbeatTimeout int // In milliseconds
	ElectionTimeout int // In milliseconds
}

func (cfg config) peers() ([]common.PeerAddress, error) {
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

func (cfg config) serverConfig() (raft.ServerConfig, error) {
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
	return sc, nil
}

func readConfig(path string) (config, error) {
	bytes, err := ioutil.ReadFile(path)
	if err != nil {
		return config{}, err
	}
	var cfg config
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// runServer starts one full node in-process and returns both the core
// and the log store backing it, since BenchmarkServerCatchUpTime needs
// to poll log length without a dedicated ServerCore introspection RPC.
func runServer(cfg config, index int) (*raft.ServerCore, common.LogStore) {
	if index < 0 || index >= len(cfg.Cluster) {
		fmt.Printf("invalid index: %d (config file specified %d servers only)\n", index, len(cfg.Cluster))
		os.Exit(2)
	}
	serverConfig, err := cfg.serverConfig()
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	self := serverConfig.Peers[index]

	logStore, logErr := persistent.CreateDbLogStore(fmt.Sprintf("%v_logstore.db", self.Id))
	pStore, pErr := persistent.NewPStore(fmt.Sprintf("%v_pstore.db", self.Id))
	snapStore, sErr := persistent.CreateDbSnapshotStore(fmt.Sprintf("%v_snapstore.db", self.Id))
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
	return core, logStore
}

func BenchmarkClientReadWriteThroughput(args []string) {
	flagset := flag.NewFlagSet("bench1", flag.ExitOnError)
	configFile := flagset.String("config", "config.yaml", "YAML file containing cluster details")
	var numRequests int
	flagset.IntVar(&numRequests, "numRequests", 100, "Number of client requests to send")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	cfg, err := readConfig(*configFile)
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
	store := kvstore.NewKeyValStore(groupId, peers)
	defer store.Close()

	fmt.Printf("Running Performance Check: Client Read Write Throughput")
	start := time.Now()
	for i := 0; i < numRequests; i++ {
		key := fmt.Sprintf("key%d", i)
		val := fmt.Sprintf("val%d", i)
		store.Set(key, val)
	}
	writeTime := time.Since(start)
	fmt.Printf("[Benchmark] %d write requests took %s on %d servers.\n", numRequests, writeTime, len(cfg.Cluster))

	start = time.Now()
	for i := 0; i < numRequests; i++ {
		key := fmt.Sprintf("key%d", i)
		store.Get(key)
	}
	readTime := time.Since(start)
	fmt.Printf("[Benchmark] %d read requests took %s on %d servers.\n", numRequests, readTime, len(cfg.Cluster))
}

func BenchmarkServerCatchUpTime(args []string) {
	flagset := flag.NewFlagSet("bench2", flag.ExitOnError)
	configFile := flagset.String("config", "config.yaml", "YAML file containing cluster details")
	var numRequests, laggingServerIndex int
	flagset.IntVar(&numRequests, "numRequests", 100, "Number of client requests to send")
	flagset.IntVar(&laggingServerIndex, "laggingServerIndex", 2, "Server index which lags")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	cfg, err := readConfig(*configFile)
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
	store := kvstore.NewKeyValStore(groupId, peers)
	defer store.Close()

	fmt.Printf("Running Performance Check: Server catch up time")
	numLogsToCatchUp := numRequests

	for i := 0; i < numLogsToCatchUp; i++ {
		key := fmt.Sprintf("key%d", i)
		val := fmt.Sprintf("val%d", i)
		store.Set(key, val)
	}

	_, laggingLog := runServer(cfg, laggingServerIndex)
	start := time.Now()
	for {
		if int(laggingLog.GetNextIndex()) >= numLogsToCatchUp+1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	elapsed := time.Since(start)

	fmt.Printf("[Benchmark] lagging server took took %s to catch up %d entries on a %d server raft.\n", elapsed, numLogsToCatchUp, len(cfg.Cluster))
}

func BenchmarkParallelClientThroughput(args []string) {
	flagset := flag.NewFlagSet("bench3", flag.ExitOnError)
	configFile := flagset.String("config", "config.yaml", "YAML file containing cluster details")
	var numRequests int
	flagset.IntVar(&numRequests, "numRequests", 100, "Number of client requests to send")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	cfg, err := readConfig(*configFile)
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

	fmt.Printf("Running Performance Check: Client Read Write Throughput")
	reqsPerThread := numRequests / 10
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 10; i++ {
		index := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			store := kvstore.NewKeyValStore(groupId, peers)
			defer store.Close()
			for i := index * reqsPerThread; i < (index+1)*reqsPerThread; i++ {
				key := fmt.Sprintf("key%d", i)
				val := fmt.Sprintf("val%d", i)
				store.Set(key, val)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	fmt.Printf("[Benchmark] %d write requests took %s on %d servers.\n", numRequests, elapsed, len(cfg.Cluster))
}
