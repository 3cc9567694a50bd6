package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Bidon15/fieldcoin-deployer/internal/deploy"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printContracts writes deployed contracts as an aligned table.
func printContracts(w io.Writer, contracts []*deploy.DeployedContract) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tCONTRACT\tADDRESS\tTX\tBLOCK\tGAS")
	for _, c := range contracts {
		tx := c.TxHash.Hex()
		if c.Simulated {
			tx = "(simulated)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			c.Step, c.Contract, c.Address.Hex(), tx, c.BlockNumber, c.GasUsed)
	}
	return tw.Flush()
}
