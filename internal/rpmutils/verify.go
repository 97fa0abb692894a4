package rpmutils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/sassoftware/go-rpmutils"
	"github.com/schollz/progressbar/v3"
)

// Result holds the outcome of verifying one RPM.
type Result struct {
	Path     string        // filesystem path to the .rpm
	NEVRA    string        // identity from the verified header
	OK       bool          // signature + checksum OK?
	Duration time.Duration // how long the check took
	Error    error         // any error (signature fail, I/O, etc)
}

// VerifyOptions tune VerifyAll.
type VerifyOptions struct {
	Workers  int       // parallel checks, at least one
	Progress io.Writer // progress bar output; nil disables it
}

// LoadKeyring reads an armored public keyring.
func LoadKeyring(pubkeyPath string) (openpgp.EntityList, error) {
	keyringFile, err := os.Open(pubkeyPath)
	if err != nil {
		return nil, fmt.Errorf("opening public key: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		return nil, fmt.Errorf("loading keyring %s: %w", pubkeyPath, err)
	}
	return keyring, nil
}

func newBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionSpinnerType(10),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// VerifyAll checks the signatures of the given packages against keyring with
// opts.Workers workers and returns the results in input order. ZIP archives
// carry no signature and must not be passed in.
func VerifyAll(paths []string, keyring openpgp.EntityList, opts VerifyOptions) []Result {
	log := logger.Logger()

	total := len(paths)
	if total == 0 {
		return nil
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}
	results := make([]Result, total)
	jobs := make(chan int, total)
	var wg sync.WaitGroup

	bar := newBar(opts.Progress, total, "verifying")

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				rpmPath := paths[idx]
				bar.Describe("verifying " + filepath.Base(rpmPath))

				start := time.Now()
				nevra, err := verifyWithGoRpm(rpmPath, keyring)
				if err != nil {
					log.Errorf("verification of %s failed: %v", rpmPath, err)
				} else {
					log.Debugf("%s: signed %s", filepath.Base(rpmPath), nevra)
				}

				results[idx] = Result{
					Path:     rpmPath,
					NEVRA:    nevra,
					OK:       err == nil,
					Duration: time.Since(start),
					Error:    err,
				}

				if err := bar.Add(1); err != nil {
					log.Errorf("failed to add to progress bar: %v", err)
				}
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	if err := bar.Finish(); err != nil {
		log.Errorf("failed to finish progress bar: %v", err)
	}
	return results
}

// verifyWithGoRpm GPG-checks and digest-checks a single file and returns
// the NEVRA of the verified header.
func verifyWithGoRpm(rpmPath string, keyring openpgp.EntityList) (string, error) {
	f, err := os.Open(rpmPath)
	if err != nil {
		return "", fmt.Errorf("opening rpm: %w", err)
	}
	defer f.Close()

	hdr, sigs, err := rpmutils.Verify(f, keyring)
	if err != nil {
		return "", fmt.Errorf("verify failed: %w", err)
	}
	if len(sigs) == 0 {
		return "", fmt.Errorf("no GPG signatures found")
	}
	n, err := hdr.GetNEVRA()
	if err != nil {
		return "", fmt.Errorf("reading NEVRA: %w", err)
	}
	return NEVRA{Name: n.Name, Epoch: n.Epoch, Version: n.Version, Release: n.Release, Arch: n.Arch}.String(), nil
}

// Failed returns the results that did not verify.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.OK {
			failed = append(failed, r)
		}
	}
	return failed
}
