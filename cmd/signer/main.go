// Package main provides the signer command-line tool for stamping feature tables with their
// schema fingerprint.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"urlsentry/internal/dataset"
	"urlsentry/internal/features"
	"urlsentry/internal/model"
	"urlsentry/pkg/metadata"
)

func main() {
	inputPath := flag.String("input", "", "Path to feature table (e.g., extracted_features.csv)")
	verify := flag.Bool("verify", false, "Verify an existing signature instead of writing one")
	modelPath := flag.String("model", "", "Optional model artifact whose schema the table must match")
	version := flag.String("version", "1", "Version recorded in the signature")
	flag.Parse()

	if *inputPath == "" {
		fmt.Println("Usage: signer -input <path> [-verify] [-model <artifact>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("📂 Reading: %s\n", *inputPath)

	cols, err := dataset.ReadSchema(*inputPath)
	if err != nil {
		log.Fatalf("❌ Error reading table header: %v\n", err)
	}

	schema := features.Schema(cols)
	if err := schema.Validate(); err != nil {
		log.Fatalf("❌ Invalid table schema: %v\n", err)
	}

	fmt.Printf("🔍 Table has %d feature columns (hash %s)\n", len(schema), schema.Fingerprint())

	// 1. Compare against the model the table is meant for
	if *modelPath != "" {
		m, err := model.Load(*modelPath)
		if err != nil {
			log.Fatalf("❌ Error loading model: %v\n", err)
		}

		if m.Schema().Fingerprint() != schema.Fingerprint() {
			log.Fatalf("❌ Table schema does not match model %s\n", *modelPath)
		}

		fmt.Println("✅ Table matches model schema")
	}

	metaPath := strings.TrimSuffix(*inputPath, ".csv") + ".meta.json"

	// 2. Verify or sign
	if *verify {
		meta, err := dataset.LoadMetadata(metaPath, schema)
		if err != nil {
			if errors.Is(err, metadata.ErrHashMismatch) {
				log.Fatalf("❌ Signature does not match table header: %v\n", err)
			}

			log.Fatalf("❌ Error verifying %s: %v\n", metaPath, err)
		}

		fmt.Printf("✅ Signature valid (version %s, signed %s)\n", meta.Version, meta.CreatedAt)

		return
	}

	fmt.Println("✍️  Signing table...")

	if err := dataset.SaveMetadata(metaPath, schema, *version); err != nil {
		log.Fatalf("Error writing signature: %v\n", err)
	}

	fmt.Printf("✅ Signed and saved to: %s\n", metaPath)
}
