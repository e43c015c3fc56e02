// client is a minimal CLI for exercising the exchange's TCP order-entry
// protocol: place, cancel, and log-book requests, plus a background reader
// printing execution/error reports as they arrive.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"fenrir/internal/common"
	fenrirNet "fenrir/internal/net"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// reportFixedHeaderLen mirrors internal/net.reportFixedHeaderLen: 1+1+8+8+8+2+4+4+16 = 52 bytes.
const reportFixedHeaderLen = 52

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("client exited with error")
	}
}

func newRootCmd() *cobra.Command {
	var serverAddr, owner string

	root := &cobra.Command{
		Use:   "client",
		Short: "Places and cancels orders against an exchange instance over TCP.",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:9001", "address of the exchange's TCP listener")
	root.PersistentFlags().StringVar(&owner, "owner", "", "owner username (compulsory)")
	root.MarkPersistentFlagRequired("owner")

	root.AddCommand(newPlaceCmd(&serverAddr, &owner))
	root.AddCommand(newCancelCmd(&serverAddr, &owner))
	root.AddCommand(newLogCmd(&serverAddr, &owner))
	return root
}

func dialAndListen(serverAddr, owner string) (net.Conn, error) {
	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", serverAddr, err)
	}
	fmt.Printf("connected to %s as %q\n", serverAddr, owner)
	go readReports(conn)
	return conn, nil
}

func newPlaceCmd(serverAddr, owner *string) *cobra.Command {
	var ticker, sideStr, typeStr string
	var price float64
	var qty float64

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Places a single order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := dialAndListen(*serverAddr, *owner)
			if err != nil {
				return err
			}
			defer conn.Close()

			side := common.Buy
			if strings.EqualFold(sideStr, "sell") {
				side = common.Sell
			}

			orderType, hasPrice, err := parseOrderType(typeStr)
			if err != nil {
				return err
			}

			if err := sendPlaceOrder(conn, *owner, orderType, ticker, price, hasPrice, qty, side); err != nil {
				return fmt.Errorf("sending place order: %w", err)
			}
			fmt.Printf("-> sent %s %s order: %s qty=%.4f price=%.4f\n", strings.ToUpper(sideStr), strings.ToUpper(typeStr), ticker, qty, price)

			waitForReports()
			return nil
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "AAPL", "symbol (max 4 chars)")
	cmd.Flags().StringVar(&sideStr, "side", "buy", "order side: buy or sell")
	cmd.Flags().StringVar(&typeStr, "type", "limit", "order type: limit, market, ioc, or fok")
	cmd.Flags().Float64Var(&price, "price", 100.0, "limit price (ignored for market orders)")
	cmd.Flags().Float64Var(&qty, "qty", 10, "quantity")
	return cmd
}

func newCancelCmd(serverAddr, owner *string) *cobra.Command {
	var orderID string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancels a resting order by id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orderID == "" {
				return fmt.Errorf("--order-id is required")
			}
			conn, err := dialAndListen(*serverAddr, *owner)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := sendCancelOrder(conn, orderID); err != nil {
				return fmt.Errorf("sending cancel: %w", err)
			}
			fmt.Printf("-> sent cancel request for %s\n", orderID)

			waitForReports()
			return nil
		},
	}
	cmd.Flags().StringVar(&orderID, "order-id", "", "id of the order to cancel")
	return cmd
}

func newLogCmd(serverAddr, owner *string) *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Requests a book log from the exchange (diagnostic).",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := dialAndListen(*serverAddr, *owner)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := sendLog(conn); err != nil {
				return fmt.Errorf("sending log request: %w", err)
			}
			fmt.Println("-> sent log request")

			waitForReports()
			return nil
		},
	}
}

func waitForReports() {
	fmt.Println("listening for reports... (ctrl+c to exit)")
	select {}
}

func parseOrderType(s string) (common.OrderType, bool, error) {
	switch strings.ToLower(s) {
	case "limit":
		return common.LimitOrder, true, nil
	case "market":
		return common.MarketOrder, false, nil
	case "ioc":
		return common.IOCOrder, true, nil
	case "fok":
		return common.FOKOrder, true, nil
	default:
		return 0, false, fmt.Errorf("unknown order type %q", s)
	}
}

// sendPlaceOrder constructs and writes a NewOrder message.
func sendPlaceOrder(conn net.Conn, owner string, orderType common.OrderType, ticker string, price float64, hasPrice bool, qty float64, side common.Side) error {
	usernameLen := len(owner)
	totalLen := fenrirNet.BaseMessageHeaderLen + fenrirNet.NewOrderMessageHeaderLen + usernameLen
	buf := make([]byte, totalLen)

	binary.BigEndian.PutUint16(buf[0:2], uint16(fenrirNet.NewOrder))

	// buf[2:4] reserved.
	binary.BigEndian.PutUint16(buf[4:6], uint16(orderType))

	tickerBytes := make([]byte, 4)
	copy(tickerBytes, ticker)
	copy(buf[6:10], tickerBytes)

	priceBits := 0.0
	if hasPrice {
		priceBits = price
	}
	binary.BigEndian.PutUint64(buf[10:18], math.Float64bits(priceBits))
	binary.BigEndian.PutUint64(buf[18:26], math.Float64bits(qty))

	buf[26] = byte(side)
	buf[27] = uint8(usernameLen)
	copy(buf[28:], owner)

	_, err := conn.Write(buf)
	return err
}

// sendCancelOrder constructs and writes a CancelOrder message.
func sendCancelOrder(conn net.Conn, orderID string) error {
	buf := make([]byte, fenrirNet.BaseMessageHeaderLen+fenrirNet.CancelOrderMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(fenrirNet.CancelOrder))
	// buf[2:4] reserved.
	idBytes := make([]byte, 16)
	copy(idBytes, orderID)
	copy(buf[4:20], idBytes)

	_, err := conn.Write(buf)
	return err
}

func sendLog(conn net.Conn) error {
	buf := make([]byte, fenrirNet.BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(fenrirNet.LogBook))
	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and prints Report messages from the server.
func readReports(conn net.Conn) {
	for {
		headerBuf := make([]byte, reportFixedHeaderLen)
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			if err != io.EOF {
				fmt.Printf("connection lost: %v\n", err)
			}
			os.Exit(0)
		}

		msgType := fenrirNet.ReportMessageType(headerBuf[0])
		side := common.Side(headerBuf[1])
		timestamp := binary.BigEndian.Uint64(headerBuf[2:10])
		qty := math.Float64frombits(binary.BigEndian.Uint64(headerBuf[10:18]))
		price := math.Float64frombits(binary.BigEndian.Uint64(headerBuf[18:26]))
		counterpartyLen := binary.BigEndian.Uint16(headerBuf[26:28])
		errStrLen := binary.BigEndian.Uint32(headerBuf[28:32])
		ticker := strings.TrimRight(string(headerBuf[32:36]), "\x00")
		orderID := strings.TrimRight(string(headerBuf[36:52]), "\x00")

		totalVarLen := int(counterpartyLen) + int(errStrLen)
		var varBuf []byte
		if totalVarLen > 0 {
			varBuf = make([]byte, totalVarLen)
			if _, err := io.ReadFull(conn, varBuf); err != nil {
				fmt.Printf("error reading report body: %v\n", err)
				return
			}
		}

		errStr := ""
		counterparty := ""
		if errStrLen > 0 {
			errStr = string(varBuf[:errStrLen])
		}
		if counterpartyLen > 0 {
			counterparty = string(varBuf[errStrLen:])
		}

		if msgType == fenrirNet.ErrorReport {
			fmt.Printf("\n[ERROR] %s\n", errStr)
			continue
		}

		sideStr := "BUY"
		if side == common.Sell {
			sideStr = "SELL"
		}
		ts := time.Unix(int64(timestamp), 0).UTC().Format(time.RFC3339)
		fmt.Printf("\n[EXECUTION] %s %s qty=%.4f price=%.4f vs=%s order=%s at=%s\n",
			sideStr, ticker, qty, price, counterparty, orderID, ts)
	}
}
