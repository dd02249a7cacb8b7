package wire

import (
	"encoding/binary"
	"fmt"
)

// CommandID is the tag of a command frame. Replies echo it, with the high bit
// set when the device rejected the command.
type CommandID uint16

const (
	CmdResetDSP             CommandID = 0x0000
	CmdGetStatus            CommandID = 0x0001
	CmdSaveConfiguration    CommandID = 0x0004
	CmdSetParameter         CommandID = 0x0010
	CmdGetParameter         CommandID = 0x0011
	CmdResetFactoryDefaults CommandID = 0x001A
	CmdStartMeasure         CommandID = 0x0020
	CmdStopMeasure          CommandID = 0x0021
	CmdSetNTPSeconds        CommandID = 0x0030
	CmdSetNTPFractions      CommandID = 0x0031

	// failedBit marks a rejected command in the echoed reply id.
	failedBit = 0x8000
)

var commandNames = map[CommandID]string{
	CmdResetDSP:             "reset_dsp",
	CmdGetStatus:            "get_status",
	CmdSaveConfiguration:    "save_configuration",
	CmdSetParameter:         "set",
	CmdGetParameter:         "get",
	CmdResetFactoryDefaults: "reset",
	CmdStartMeasure:         "start",
	CmdStopMeasure:          "stop",
	CmdSetNTPSeconds:        "set_ntp_seconds",
	CmdSetNTPFractions:      "set_ntp_fractions",
}

func (id CommandID) String() string {
	if name, ok := commandNames[id]; ok {
		return name
	}
	return fmt.Sprintf("command 0x%04x", uint16(id))
}

// Known reports whether id is one of the commands this package can encode.
func (id CommandID) Known() bool {
	_, ok := commandNames[id]
	return ok
}

// ParamIndex selects a device parameter for get/set.
type ParamIndex uint16

const (
	ParamIPAddress  ParamIndex = 0x1000
	ParamTCPPort    ParamIndex = 0x1001
	ParamSubnetMask ParamIndex = 0x1002
	ParamGateway    ParamIndex = 0x1003
)

func (p ParamIndex) String() string {
	switch p {
	case ParamIPAddress:
		return "address"
	case ParamTCPPort:
		return "port"
	case ParamSubnetMask:
		return "subnet"
	case ParamGateway:
		return "gateway"
	}
	return fmt.Sprintf("parameter 0x%04x", uint16(p))
}

// Command is one request frame. Index is meaningful for get/set parameter,
// Value for set parameter (raw octets) and the two NTP commands (a
// little-endian uint32, see NTPValue).
type Command struct {
	ID    CommandID
	Index ParamIndex
	Value [4]byte
}

// NewResetDSP etc. construct the commands that carry no body.
func NewResetDSP() Command             { return Command{ID: CmdResetDSP} }
func NewGetStatus() Command            { return Command{ID: CmdGetStatus} }
func NewSaveConfiguration() Command    { return Command{ID: CmdSaveConfiguration} }
func NewResetFactoryDefaults() Command { return Command{ID: CmdResetFactoryDefaults} }
func NewStart() Command                { return Command{ID: CmdStartMeasure} }
func NewStop() Command                 { return Command{ID: CmdStopMeasure} }

// NewGet returns a get-parameter command for index.
func NewGet(index ParamIndex) Command {
	return Command{ID: CmdGetParameter, Index: index}
}

// NewSet returns a set-parameter command writing value to index.
func NewSet(index ParamIndex, value [4]byte) Command {
	return Command{ID: CmdSetParameter, Index: index, Value: value}
}

// NewSetNTPSeconds returns the command that sets the whole-second part of the
// device clock.
func NewSetNTPSeconds(seconds uint32) Command {
	c := Command{ID: CmdSetNTPSeconds}
	binary.LittleEndian.PutUint32(c.Value[:], seconds)
	return c
}

// NewSetNTPFractions returns the command that sets the fractional part of the
// device clock.
func NewSetNTPFractions(fractions uint32) Command {
	c := Command{ID: CmdSetNTPFractions}
	binary.LittleEndian.PutUint32(c.Value[:], fractions)
	return c
}

// NTPValue returns Value read as a little-endian uint32.
func (c Command) NTPValue() uint32 {
	return binary.LittleEndian.Uint32(c.Value[:])
}

func (c Command) String() string {
	switch c.ID {
	case CmdGetParameter:
		return fmt.Sprintf("%s %s", c.ID, c.Index)
	case CmdSetParameter:
		return fmt.Sprintf("%s %s=% x", c.ID, c.Index, c.Value[:])
	case CmdSetNTPSeconds, CmdSetNTPFractions:
		return fmt.Sprintf("%s %d", c.ID, c.NTPValue())
	}
	return c.ID.String()
}

// commandBodySize returns the size of the body that follows the 4-byte
// command prefix.
func commandBodySize(id CommandID) int {
	switch id {
	case CmdSetParameter:
		return 6
	case CmdGetParameter:
		return 2
	case CmdSetNTPSeconds, CmdSetNTPFractions:
		return 6
	}
	return 0
}

// EncodeCommand returns the complete frame for c.
func EncodeCommand(c Command) []byte {
	p := make([]byte, 0, 4+commandBodySize(c.ID))
	p = binary.LittleEndian.AppendUint16(p, uint16(c.ID))
	p = binary.LittleEndian.AppendUint16(p, 0)
	switch c.ID {
	case CmdSetParameter:
		p = binary.LittleEndian.AppendUint16(p, uint16(c.Index))
		p = append(p, c.Value[:]...)
	case CmdGetParameter:
		p = binary.LittleEndian.AppendUint16(p, uint16(c.Index))
	case CmdSetNTPSeconds, CmdSetNTPFractions:
		p = binary.LittleEndian.AppendUint16(p, 0)
		p = append(p, c.Value[:]...)
	}
	return frame(TypeCommand, p)
}

// DecodeCommand parses a complete command frame.
func DecodeCommand(b []byte) (Command, error) {
	h, p, err := SplitFrame(b)
	if err != nil {
		return Command{}, err
	}
	if h.Type != TypeCommand {
		return Command{}, fmt.Errorf("%w: expected %s frame, got %s", ErrFraming, TypeCommand, h.Type)
	}
	if len(p) < 4 {
		return Command{}, fmt.Errorf("%w: command payload of %d bytes", ErrFraming, len(p))
	}
	c := Command{ID: CommandID(binary.LittleEndian.Uint16(p[0:2]))}
	if !c.ID.Known() {
		return Command{}, fmt.Errorf("%w: unknown %s", ErrFraming, c.ID)
	}
	body := p[4:]
	if want := commandBodySize(c.ID); len(body) != want {
		return Command{}, fmt.Errorf("%w: %s body is %d bytes, want %d", ErrFraming, c.ID, len(body), want)
	}
	switch c.ID {
	case CmdSetParameter:
		c.Index = ParamIndex(binary.LittleEndian.Uint16(body[0:2]))
		copy(c.Value[:], body[2:6])
	case CmdGetParameter:
		c.Index = ParamIndex(binary.LittleEndian.Uint16(body[0:2]))
	case CmdSetNTPSeconds, CmdSetNTPFractions:
		copy(c.Value[:], body[2:6])
	}
	return c, nil
}
