package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bvisness/wasm-validate/binary"
	"github.com/bvisness/wasm-validate/utils"
	"github.com/bvisness/wasm-validate/valid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var rootCmd *cobra.Command
	rootCmd = &cobra.Command{
		Use:   "wasm-validate <file>",
		Short: "Type-check a WebAssembly module with typed function references",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 {
				rootCmd.Usage()
				os.Exit(1)
			}
			filename := args[0]

			var wasmBytes []byte
			if filename == "-" {
				var err error
				wasmBytes, err = io.ReadAll(os.Stdin)
				if err != nil {
					exitWithError("could not read stdin: %v", err)
				}
				filename = "<stdin>"
			} else {
				var err error
				wasmBytes, err = os.ReadFile(filename)
				if err != nil {
					err := err.(*os.PathError)
					exitWithError("could not read file %s: %v", err.Path, err.Err)
				}
			}

			logger := zap.NewNop()
			if utils.Must1(rootCmd.PersistentFlags().GetBool("verbose")) {
				logger = utils.Must1(zap.NewDevelopment())
			}
			defer logger.Sync()

			m, err := binary.DecodeModule(filename, wasmBytes)
			if err != nil {
				exitWithError("%v", err)
			}
			logger.Info("decoded module",
				zap.String("file", filename),
				zap.Int("types", len(m.It.Types)),
				zap.Int("imports", len(m.It.Imports)),
				zap.Int("funcs", len(m.It.Funcs)),
				zap.Int("elemSegments", len(m.It.Elems)),
				zap.Int("dataSegments", len(m.It.Datas)),
			)

			cfg := valid.Config{
				MultipleMemories: utils.Must1(rootCmd.PersistentFlags().GetBool("multi-memory")),
				MultipleResults:  utils.Must1(rootCmd.PersistentFlags().GetBool("multi-value")),
			}
			if err := valid.CheckModuleWith(m, cfg); err != nil {
				exitWithError("%v", err)
			}
			logger.Info("module is valid", zap.String("file", filename))
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log decode and validation progress.")
	rootCmd.PersistentFlags().Bool("multi-memory", false, "Allow more than one memory per module.")
	rootCmd.PersistentFlags().Bool("multi-value", false, "Allow blocks with more than one result.")
	utils.Must(rootCmd.Execute())
}

func exitWithError(msg string, args ...any) {
	msg = fmt.Sprintf(msg, args...)
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
	os.Exit(1)
}
