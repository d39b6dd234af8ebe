package store

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"markd/types"
)

// LoadEmailConfig reads email_config.json. The email stage no-ops when the
// file is absent, so a missing file is returned as (nil, nil).
func (s *Store) LoadEmailConfig() (*types.EmailConfig, error) {
	var cfg types.EmailConfig
	err := readJSON(s.path(emailFile), &cfg)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProductGroups reads the configured product-group codes from
// products.txt, one integer per line. Without the file the full taxonomy is
// used.
func (s *Store) LoadProductGroups() []int {
	f, err := os.Open(s.path(productsFile))
	if err != nil {
		zap.L().Warn("products.txt not found, using full product group taxonomy", zap.Error(err))
		return types.AllProductGroupCodes()
	}
	defer f.Close()

	var codes []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		code, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		zap.L().Warn("products.txt contains no codes, using full product group taxonomy")
		return types.AllProductGroupCodes()
	}
	return codes
}
