package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

var parser = flags.NewNamedParser("radpipe", flags.PassDoubleDash|flags.IgnoreUnknown)

func printHelp(parser *flags.Parser) {
	// Print help for active command
	if parser.Command.Active != nil {
		parser.Command = parser.Command.Active
	}
	var b bytes.Buffer
	parser.WriteHelp(&b)
	fmt.Println(b.String())
}

func main() {
	args, err := parser.ParseArgs(os.Args[1:])
	if err == nil {
		os.Exit(0)
	}
	switch flagsErr := err.(type) {
	case *flags.Error:
		if flagsErr.Type == flags.ErrHelp ||
			flagsErr.Type == flags.ErrCommandRequired ||
			flagsErr.Type == flags.ErrRequired {
			printHelp(parser)
			os.Exit(0)
		} else if flagsErr.Type == flags.ErrUnknownCommand {
			if len(args) > 0 {
				fmt.Printf("`%v' not supported\n\n", args[0])
			}
			if parser.Command.Active != nil {
				printHelp(parser)
			}
		} else if flagsErr.Type == flags.ErrMarshal {
			fmt.Println("Invalid syntax")
			printHelp(parser)
			os.Exit(1)
		}
		fmt.Println(flagsErr.Error())
		os.Exit(1)

	default:
		// TODO create error type to prevent printing golang errors to user
		fmt.Println(flagsErr.Error())
		os.Exit(1)
	}
}
