package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"sqidlink.local/internal/app/shortlink"
	"sqidlink.local/internal/app/shortlink/repo"
	"sqidlink.local/sqids"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "sqidctl",
		Usage:  "encode and decode sqids from the command line",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "alphabet",
				Usage:   "custom alphabet, empty for the default one",
				EnvVars: []string{"SQIDS_ALPHABET"},
			},
			&cli.UintFlag{
				Name:    "min-length",
				Usage:   "minimum ID length (0-255)",
				EnvVars: []string{"SQIDS_MIN_LENGTH"},
			},
			&cli.StringSliceFlag{
				Name:  "blocklist",
				Usage: "blocked word, repeatable",
			},
			&cli.StringFlag{
				Name:    "blocklist-file",
				Usage:   "file with one blocked word per line",
				EnvVars: []string{"SQIDS_BLOCKLIST_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "encode non-negative integers into one ID",
				ArgsUsage: "N...",
				Action:    encodeAction,
			},
			{
				Name:      "decode",
				Usage:     "decode an ID, prints nothing for an invalid ID",
				ArgsUsage: "ID",
				Action:    decodeAction,
			},
			{
				Name:      "shuffle",
				Usage:     "print the shuffled form of an alphabet",
				ArgsUsage: "ALPHABET",
				Action:    shuffleAction,
			},
			{
				Name:      "hashpass",
				Usage:     "print a bcrypt hash for seeding users",
				ArgsUsage: "PASSWORD",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "cost", Value: bcrypt.DefaultCost, Usage: "bcrypt cost"},
				},
				Action: hashpassAction,
			},
		},
	}
}

// coderFromFlags 合并 --blocklist 和 --blocklist-file
func coderFromFlags(c *cli.Context) (*shortlink.Coder, error) {
	minLength := c.Uint("min-length")
	if minLength > math.MaxUint8 {
		return nil, fmt.Errorf("min-length must be at most %d", math.MaxUint8)
	}
	blocklist := c.StringSlice("blocklist")
	if path := c.String("blocklist-file"); path != "" {
		words, err := shortlink.LoadBlocklist(path)
		if err != nil {
			return nil, err
		}
		blocklist = append(blocklist, words...)
	}
	return shortlink.NewCoder(shortlink.CoderOptions{
		Alphabet:  c.String("alphabet"),
		MinLength: uint8(minLength),
		Blocklist: blocklist,
	})
}

func encodeAction(c *cli.Context) error {
	coder, err := coderFromFlags(c)
	if err != nil {
		return err
	}
	numbers := make([]uint64, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", arg, err)
		}
		numbers = append(numbers, n)
	}
	id, err := coder.EncodeNumbers(numbers)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, id)
	return nil
}

func decodeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("decode takes exactly one ID")
	}
	coder, err := coderFromFlags(c)
	if err != nil {
		return err
	}
	numbers := coder.DecodeNumbers(c.Args().First())
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.FormatUint(n, 10)
	}
	fmt.Fprintln(c.App.Writer, strings.Join(parts, " "))
	return nil
}

func shuffleAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("shuffle takes exactly one alphabet")
	}
	fmt.Fprintln(c.App.Writer, sqids.Shuffle(c.Args().First()))
	return nil
}

func hashpassAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("hashpass takes exactly one password")
	}
	hash, err := repo.HashPassword(c.Args().First(), c.Int("cost"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, hash)
	return nil
}
