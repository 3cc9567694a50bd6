// Command fieldcoin-deploy deploys the FieldCoin token and crowdsale contracts.
package main

import "github.com/Bidon15/fieldcoin-deployer/internal/cli"

func main() {
	cli.Execute()
}
