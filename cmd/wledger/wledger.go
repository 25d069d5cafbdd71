package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"

	"wsb.com/wledger/internals/chain"
	"wsb.com/wledger/internals/config"
	"wsb.com/wledger/internals/events"
	"wsb.com/wledger/internals/helpers"
	"wsb.com/wledger/internals/miner"
)

func showBanner(cfg config.Config) {
	info := pterm.Sprintfln("Miner address: %s", cfg.MinerAddress) +
		pterm.Sprintfln("Difficulty:    %d", cfg.Difficulty) +
		pterm.Sprintfln("Reward:        %v", cfg.Reward) +
		pterm.Sprintf("Interval:      %s", cfg.BlockInterval)
	pterm.DefaultBox.
		WithTitle(pterm.LightYellow("|WLEDGER|")).
		WithTitleTopCenter().
		WithHorizontalPadding(4).
		Println(info)
}

func formatPrintBlock(height int, b helpers.Block) {
	pterm.DefaultSection.Printf("BLOCK %d", height)
	header := pterm.TableData{
		{"Hash", helpers.HashHeader(&b.Header)},
		{"Previous hash", b.Header.PreviousHash},
		{"Merkle hash", b.Header.MerkleHash},
		{"Difficulty", strconv.FormatUint(uint64(b.Header.Difficulty), 10)},
		{"Nonce", strconv.FormatUint(uint64(b.Header.Nonce), 10)},
		{"Timestamp", strconv.FormatInt(b.Header.Timestamp, 10)},
	}
	pterm.DefaultTable.WithData(header).Render()

	txs := pterm.TableData{{"#", "Sender", "Receiver", "Amount"}}
	for i, tx := range b.Transactions {
		txs = append(txs, []string{strconv.Itoa(i), tx.Sender, tx.Receiver, strconv.FormatFloat(tx.Amount, 'f', -1, 64)})
	}
	pterm.DefaultTable.WithHasHeader().WithData(txs).Render()
}

func run(cfg config.Config) error {
	logger := cfg.Logger()
	log := logrus.NewEntry(logger).WithField("miner", cfg.MinerAddress)

	log.Info("Generating genesis block")
	c, err := chain.New(cfg.MinerAddress, cfg.Difficulty,
		chain.WithReward(cfg.Reward),
		chain.WithLogger(log),
	)
	if err != nil {
		return err
	}
	formatPrintBlock(0, c.Blocks()[0])

	bus := events.NewEventBus()
	defer bus.Close()
	w := miner.NewWorker(c, bus, log, cfg.BlockInterval.Duration, cfg.Blocks)

	for _, tx := range cfg.Transactions {
		if err := w.Submit(tx.Sender, tx.Receiver, tx.Amount); err != nil {
			return fmt.Errorf("seed transaction %s -> %s: %w", tx.Sender, tx.Receiver, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blocks := bus.SubscribeBlocks()
	w.Start(ctx)
	defer w.Stop()

	height := 1
	interrupted := ctx.Done()
	for {
		select {
		case b := <-blocks:
			formatPrintBlock(height, b)
			height++
		case <-w.Done():
			for len(blocks) > 0 {
				formatPrintBlock(height, <-blocks)
				height++
			}
			if err := w.Verify(); err != nil {
				return err
			}
			log.WithField("height", len(w.Snapshot())).Info("chain verified")
			return nil
		case <-interrupted:
			log.Info("interrupted")
			interrupted = nil
			w.Stop()
		}
	}
}

func main() {
	configFile := flag.String("config", "./config.json", "path to the JSON configuration file")
	flag.Parse()

	cfg, err := config.LoadConfiguration(*configFile)
	if err != nil {
		logrus.WithError(err).Fatal("could not load configuration")
	}
	showBanner(cfg)

	if err := run(cfg); err != nil {
		logrus.WithError(err).Error("ledger stopped")
		os.Exit(1)
	}
}
