package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pil-lang/pilvault/pkg/phrase"
	"github.com/pil-lang/pilvault/pkg/vocab"
)

// Phrase command flags
var (
	generateDomain string
	generateData   []string

	decodeLength int
)

func init() {
	phraseCmd.AddCommand(phraseGenerateCmd)
	phraseCmd.AddCommand(phraseEncodeCmd)
	phraseCmd.AddCommand(phraseDecodeCmd)
	phraseCmd.AddCommand(phraseDomainsCmd)

	phraseGenerateCmd.Flags().StringVar(&generateDomain, "domain", string(vocab.Cognition),
		"Perceptual domain to draw tokens from")
	phraseGenerateCmd.Flags().StringArrayVar(&generateData, "data", nil,
		"Intent data (key=value, can be repeated)")

	phraseDecodeCmd.Flags().IntVar(&decodeLength, "length", phrase.GeneratedLength,
		"Phrase length in tokens (12, 15, 18, 21, or 24)")
}

// phraseCmd is the parent command for phrase operations. None of these
// touch the store.
var phraseCmd = &cobra.Command{
	Use:   "phrase",
	Short: "Secure phrase operations",
}

// phraseGenerateCmd generates a deterministic phrase from intent data
var phraseGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generates a deterministic phrase from intent data",
	Long: `Generates a 12-token phrase from intent data, drawn from one
perceptual domain. The same domain and data always produce the same phrase.

Example:
  pilvault phrase generate --domain emotion --data purpose=greeting`,
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, err := vocab.ParseDomain(generateDomain)
		if err != nil {
			return err
		}
		intent, err := parseIntent(generateData)
		if err != nil {
			return err
		}

		tokens, err := phrase.Generate(voc, domain, intent)
		if err != nil {
			return fmt.Errorf("failed to generate phrase: %w", err)
		}
		fmt.Println(strings.Join(tokens, " "))
		return nil
	},
}

// phraseEncodeCmd converts a phrase to hex entropy
var phraseEncodeCmd = &cobra.Command{
	Use:   "encode [tokens...]",
	Short: "Encodes a phrase to its hex entropy",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens := make([]string, 0, len(args))
		for _, a := range args {
			tokens = append(tokens, phrase.NormalizeToken(a))
		}

		entropy, err := phrase.Encode(voc, tokens)
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(entropy))
		return nil
	},
}

// phraseDecodeCmd converts hex entropy back to a phrase
var phraseDecodeCmd = &cobra.Command{
	Use:   "decode [hex-entropy]",
	Short: "Decodes hex entropy back to a phrase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entropy, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("invalid hex entropy: %w", err)
		}

		tokens, err := phrase.Decode(voc, entropy, decodeLength)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(tokens, " "))
		return nil
	},
}

// phraseDomainsCmd lists the perceptual domains
var phraseDomainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Lists the perceptual domains and their vocabulary sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, d := range vocab.Domains() {
			words, err := voc.DomainSlice(d)
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %4d tokens\n", d, len(words))
		}
		return nil
	},
}
