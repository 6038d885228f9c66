// Command harvester ingests flight-offer card texts and API payloads into
// append-only CSV or Postgres targets.
package main

func main() {
	Execute()
}
