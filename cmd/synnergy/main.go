package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synnergychain/core"
	"synnergychain/pkg/config"
	"synnergychain/pkg/utils"
)

func main() {
	rootCmd := &cobra.Command{Use: "synnergy"}
	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(genesisCmd())
	rootCmd.AddCommand(startCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	var mnemonicIn string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate or import an Ed25519 node identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			var kp core.Keypair
			var mnemonic string
			var err error
			if mnemonicIn != "" {
				kp, err = core.KeypairFromMnemonic(mnemonicIn, "")
				mnemonic = mnemonicIn
			} else {
				kp, mnemonic, err = core.NewRandomKeypair()
			}
			if err != nil {
				return err
			}
			fmt.Printf("mnemonic: %s\n", mnemonic)
			fmt.Printf("public:   %s\n", kp.Address())
			fmt.Printf("secret:   %s\n", hex.EncodeToString(kp.Private.Seed()))
			return nil
		},
	}
	cmd.Flags().StringVar(&mnemonicIn, "from-mnemonic", "", "import an existing BIP-39 mnemonic instead of generating one")
	return cmd
}

func genesisCmd() *cobra.Command {
	var cfgPath string
	var funded []string
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "initialize a fresh chain with a genesis block",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, kp, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			db, err := core.OpenDatabase(config.AppConfig.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			engine := core.NewBlockEngine(db, core.NewTxPool(), defaultApps())
			addrs := make([]core.Address, len(funded))
			for i, a := range funded {
				addrs[i] = core.Address(a)
			}
			sb, _, err := engine.Initialize(kp, addrs)
			if err != nil {
				return err
			}
			fmt.Printf("genesis block hash: %s\n", sb.Block.Hash())
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath(), "path to node config (or set SYNN_CONFIG)")
	cmd.Flags().StringSliceVar(&funded, "fund", nil, "address to credit in the genesis block (repeatable)")
	return cmd
}

func startCmd() *cobra.Command {
	var cfgPath string
	var httpAddr string
	var peerURL string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the node: gossip transport, message processor and HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			db, err := core.OpenDatabase(config.AppConfig.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			pool := core.NewTxPool()
			apps := defaultApps()
			engine := core.NewBlockEngine(db, pool, apps)

			registry := core.NewPeerRegistry()
			node, err := core.NewNode(core.DefaultNetConfig(), registry)
			if err != nil {
				return err
			}
			defer node.Close()

			var syncEngine *core.SyncEngine
			if peerURL != "" {
				syncEngine = core.NewSyncEngine(core.NewHTTPPeerClient(peerURL), engine)
			} else {
				logrus.Warn("cmd: no --peer configured, node cannot catch up via sync on a height gap")
			}
			proc := core.NewProcessor(engine, syncEngine)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			blocks, err := node.SubscribeBlocks()
			if err != nil {
				return err
			}
			txns, err := node.SubscribeTransactions()
			if err != nil {
				return err
			}
			go bridgeGossip(ctx, blocks, txns, proc)
			go proc.Run(ctx)

			srv := core.NewServer(engine)
			httpSrv := &http.Server{Addr: httpAddr, Handler: srv.Router()}
			go func() {
				logrus.WithField("addr", httpAddr).Info("cmd: http surface listening")
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logrus.WithError(err).Error("cmd: http server stopped")
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logrus.Info("cmd: shutting down")
			httpSrv.Close()
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath(), "path to node config (or set SYNN_CONFIG)")
	cmd.Flags().StringVar(&httpAddr, "http", fmt.Sprintf(":%d", utils.EnvOrDefaultInt("SYNN_HTTP_PORT", core.DefaultHTTPPort)), "HTTP peer-to-peer surface listen address (or set SYNN_HTTP_PORT)")
	cmd.Flags().StringVar(&peerURL, "peer", "", "base URL of a peer's HTTP surface, used to sync across a height gap")
	return cmd
}

func bridgeGossip(ctx context.Context, blocks, txns <-chan core.GossipMessage, proc *core.Processor) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-blocks:
			if !ok {
				return
			}
			proc.Submit(core.Message{Block: msg.Block})
		case msg, ok := <-txns:
			if !ok {
				return
			}
			proc.Submit(core.Message{Txn: msg.Txn})
		}
	}
}

func defaultApps() *core.AppRegistry {
	apps := core.NewAppRegistry()
	apps.Register(core.WalletAppName, core.WalletApp{})
	return apps
}
