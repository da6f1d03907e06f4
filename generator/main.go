package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jerbob92/wazero-dispatch/generator/generator"
)

var (
	fileName  string
	typeNames *string
	output    *string
	verbose   *bool
)

func init() {
	fileName = os.Getenv("GOFILE")
	typeNames = flag.String("type", "", "comma separated list of the types to generate messengers for")
	output = flag.String("o", "", "the directory to write the generated files to, defaults to the package directory")
	verbose = flag.Bool("v", false, "enable verbose logging")
}

func Usage() {
	fmt.Fprintf(os.Stderr, "Usage of wazero-dispatch/generator:\n")
	fmt.Fprintf(os.Stderr, "\t//go:generate go run github.com/jerbob92/wazero-dispatch/generator -type=Greeter\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = Usage
	flag.Parse()

	dir, err := filepath.Abs(".")
	if err != nil {
		panic(err)
	}

	if *typeNames == "" {
		log.Fatal("No type given")
	}

	outputDir := dir
	if *output != "" {
		outputDir = *output
	}

	err = generator.Generate(generator.Options{
		Dir:       dir,
		FileName:  fileName,
		TypeNames: strings.Split(*typeNames, ","),
		OutputDir: outputDir,
		Verbose:   *verbose,
	})
	if err != nil {
		log.Fatal(err)
	}
}
