package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mentionwatch/internal/model"
	"mentionwatch/internal/normalize"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var normalizePlatform string

type normalizedView struct {
	model.NormalizedContent
	Sentiment model.Sentiment `json:"sentiment"`
	Keywords  []string        `json:"keywords"`
}

// normalizeCmd is a debugging aid: it runs raw provider items from a file
// through the normalizer and prints the canonical records.
var normalizeCmd = &cobra.Command{
	Use:   "normalize <file>",
	Short: "Debug: normalize raw content items from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(args[0]))
		items, err := decodeRaw(data, ext == ".yaml" || ext == ".yml")
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		out := normalizeItems(items, normalizePlatform, time.Now)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// decodeRaw accepts a single item or a list of items.
func decodeRaw(data []byte, isYAML bool) ([]model.RawContent, error) {
	data = bytes.TrimSpace(data)
	if isYAML {
		var list []model.RawContent
		if err := yaml.Unmarshal(data, &list); err == nil {
			return list, nil
		}
		var one model.RawContent
		if err := yaml.Unmarshal(data, &one); err != nil {
			return nil, err
		}
		return []model.RawContent{one}, nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []model.RawContent
		err := json.Unmarshal(data, &list)
		return list, err
	}
	var one model.RawContent
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []model.RawContent{one}, nil
}

func normalizeItems(items []model.RawContent, platform string, now func() time.Time) []normalizedView {
	n := normalize.New(now)
	out := make([]normalizedView, 0, len(items))
	for _, raw := range items {
		nc := n.Normalize(raw, platform)
		s, ok := normalize.SentimentFromMetadata(raw.Metadata)
		if !ok {
			s = normalize.InferSentiment(nc.Content)
		}
		out = append(out, normalizedView{NormalizedContent: nc, Sentiment: s, Keywords: normalize.ExtractKeywords(nc.Content)})
	}
	return out
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizePlatform, "platform", "debug", "platform name used for ids and metadata")
	rootCmd.AddCommand(normalizeCmd)
}
