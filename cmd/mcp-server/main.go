package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gilby125/flight-offers-harvester/harvest"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/buildinfo"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	parser, _, err := harvest.NewParser(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building card parser: %v\n", err)
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(parser)); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
	}
}

func newServer(parser *offers.Parser) *server.MCPServer {
	s := server.NewMCPServer(
		"flight-offers-mcp",
		buildinfo.Version,
		server.WithLogging(),
	)

	parseTool := mcp.NewTool("parse_flight_card",
		mcp.WithDescription("Extract a normalised flight offer from the text of one search-result card"),
		mcp.WithString("card",
			mcp.Required(),
			mcp.Description("Visible text of the result card"),
		),
		mcp.WithString("origin",
			mcp.Description("Queried origin IATA code (e.g., SCL)"),
		),
		mcp.WithString("destination",
			mcp.Description("Queried destination IATA code (e.g., LIM)"),
		),
		mcp.WithString("date",
			mcp.Description("Queried departure date (YYYY-MM-DD)"),
		),
		mcp.WithString("cabin_class",
			mcp.Description("Cabin class of the query, e.g. Economy"),
		),
		mcp.WithString("trip_type",
			mcp.Description("Trip type of the query, e.g. 'One way'"),
		),
	)
	s.AddTool(parseTool, parseCardHandler(parser, offers.NewNormalizer(parser.Slots())))

	schemaTool := mcp.NewTool("offer_columns",
		mcp.WithDescription("List the output columns written for a mode"),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("'text' or 'api'"),
		),
	)
	s.AddTool(schemaTool, schemaHandler(parser.Slots()))

	return s
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func parseCardHandler(p *offers.Parser, n *offers.Normalizer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("Invalid arguments format"), nil
		}

		card := stringArg(argsMap, "card")
		if card == "" {
			return mcp.NewToolResultError("card is required"), nil
		}

		frag, err := p.Parse(card)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Could not parse card: %v", err)), nil
		}

		sc := offers.SearchContext{
			Origin:        stringArg(argsMap, "origin"),
			Destination:   stringArg(argsMap, "destination"),
			DepartureDate: stringArg(argsMap, "date"),
			CabinClass:    stringArg(argsMap, "cabin_class"),
			TripType:      stringArg(argsMap, "trip_type"),
		}
		offer, err := n.FromFragment(sc, frag)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Card parsed but the offer is invalid: %v", err)), nil
		}

		jsonBytes, err := json.MarshalIndent(offer, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error marshaling response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}
}

func schemaHandler(slots int) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, _ := request.Params.Arguments.(map[string]interface{})
		mode, err := offers.ParseMode(stringArg(argsMap, "mode"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(strings.Join(offers.SchemaFor(mode, slots).Header(), "\n")), nil
	}
}
