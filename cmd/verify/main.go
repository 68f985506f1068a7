package main

import (
	"flag"
	"fmt"
	"os"

	"voting-audit/blockchain/ledger"
	"voting-audit/digest"
	"voting-audit/storage"
)

func main() {
	file := flag.String("file", "", "audit dump to verify")
	dir := flag.String("dir", "", "verify the most recent dump in this directory")
	flag.Parse()

	os.Exit(run(*file, *dir))
}

func run(file, dir string) int {
	dump, err := loadDump(file, dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	hasher, err := digest.ByName(dump.Digest)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	violations := ledger.ValidateChain(dump.Blocks, hasher)
	if len(dump.Blocks) > 0 && dump.Blocks[len(dump.Blocks)-1].Hash != dump.LastHash {
		fmt.Printf("dump header last_hash %s does not match tail block\n", dump.LastHash.Hex())
		return 1
	}
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Println(v.String())
		}
		fmt.Printf("INVALID: %d violation(s) in %d blocks\n", len(violations), len(dump.Blocks))
		return 1
	}

	fmt.Printf("VALID: %d blocks, digest %s, tail %s\n", len(dump.Blocks), hasher.Name(), dump.LastHash.Hex())
	return 0
}

func loadDump(file, dir string) (*storage.ChainDump, error) {
	switch {
	case file != "":
		return storage.LoadDump(file)
	case dir != "":
		exporter, err := storage.NewChainExporter(dir, 0, nil)
		if err != nil {
			return nil, err
		}
		dump, err := exporter.LoadLatest()
		if err != nil {
			return nil, err
		}
		if dump == nil {
			return nil, fmt.Errorf("no audit dumps in %s", dir)
		}
		return dump, nil
	default:
		return nil, fmt.Errorf("one of -file or -dir is required")
	}
}
