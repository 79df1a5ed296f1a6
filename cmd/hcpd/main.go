// hcpd serves the positional bond map engine over TCP.
//
// A typical invocation seeds a vocabulary and listens on the default port:
//
//	hcpd --db-backend=sqlite --db-connection=pbm.db --vocab=words.txt
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/engine"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/server"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/storage"
)

var (
	flagListen       = flag.String("listen", "127.0.0.1:9077", "address to listen on")
	flagDBBackend    = flag.String("db-backend", "sqlite", "database backend, \"postgres\" or \"sqlite\"")
	flagDBConnection = flag.String("db-connection", "pbm.db", "connection string (postgres DSN or sqlite path)")
	flagVocabCache   = flag.String("vocab-cache", "vocab.bolt", "path of the vocabulary cache file")
	flagVocab        = flag.String("vocab", "", "vocabulary file to seed before serving")
	flagGPU          = flag.Bool("gpu", true, "request the GPU resolver")
	flagCPU          = flag.Bool("cpu", false, "force the CPU resolver")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", flag.Args())
		flag.Usage()
		os.Exit(2)
	}
	if err := run(); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}

func run() error {
	var backend storage.Backend
	switch *flagDBBackend {
	case "postgres":
		backend = storage.Postgres
	case "sqlite":
		backend = storage.Sqlite
	default:
		fmt.Fprintf(os.Stderr, "unknown --db-backend %q\n", *flagDBBackend)
		os.Exit(2)
	}
	if *flagGPU && !*flagCPU {
		klog.Infof("no GPU resolver in this build, using the CPU simulator")
	}

	store, err := storage.Open(backend, *flagDBConnection)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := engine.New(store, engine.Config{VocabPath: *flagVocabCache})
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if *flagVocab != "" {
		f, err := os.Open(*flagVocab)
		if err != nil {
			return err
		}
		stats, err := eng.SeedVocabulary(f, true)
		_ = f.Close()
		if err != nil {
			return err
		}
		klog.Infof("seeded %d words, %d affixes, %d labels, %d sequences",
			stats.Words, stats.Affixes, stats.Labels, stats.Sequences)
	}

	srv := server.New(eng)
	if err := srv.Listen(*flagListen); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		klog.Infof("received %s, shutting down", sig)
		srv.Shutdown()
	}()

	return srv.Serve()
}
