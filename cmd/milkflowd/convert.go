package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	mferrors "github.com/vnykmshr/milkflow/pkg/common/errors"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "convert a quantity the way POST /9/milk converts JSON bodies",
		ArgsUsage: "<value> <liters|gallons|litres|pints>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the result as a JSON measure"},
		},
		Action: runConvert,
	}
}

func runConvert(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return mferrors.NewValidationError("convert", "args", cmd.Args().Slice(), "expected a value and a unit").
			WithHint("for example: milkflowd convert 5 liters")
	}

	value, err := strconv.ParseFloat(cmd.Args().Get(0), 64)
	if err != nil {
		return mferrors.NewValidationError("convert", "value", cmd.Args().Get(0), "must be a number")
	}

	// Decoding through JSON applies the same checks as the HTTP endpoint.
	raw, err := json.Marshal(map[string]float64{cmd.Args().Get(1): value})
	if err != nil {
		return mferrors.NewValidationError("convert", "value", value, "must be a finite number")
	}
	var m unit.Measure
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}

	converted := m.Convert()
	w := cmd.Root().Writer
	if !cmd.Bool("json") {
		_, err = fmt.Fprintln(w, converted.String())
		return err
	}

	out, err := json.Marshal(converted)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
