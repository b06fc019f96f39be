/* Copyright (c) 2018 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package packet

import (
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// Frame is one captured packet as read from a pcap file.
type Frame struct {
	Data        []byte
	CaptureInfo gopacket.CaptureInfo
	LinkType    layers.LinkType
}

// WritePcap writes frames to w as a complete pcap file. The file link
// type is taken from the first frame and every frame must share it.
func WritePcap(w io.Writer, frames []Frame) error {
	linktype := layers.LinkTypeEthernet
	if len(frames) > 0 {
		linktype = frames[0].LinkType
	}

	pcapWriter := pcapgo.NewWriter(w)
	if err := pcapWriter.WriteFileHeader(0xffff, linktype); err != nil {
		return err
	}

	for i, frame := range frames {
		if frame.LinkType != linktype {
			return errors.Errorf("frame %d: link type %v does not match %v",
				i, frame.LinkType, linktype)
		}
		captureInfo := frame.CaptureInfo
		if captureInfo.CaptureLength == 0 {
			captureInfo.CaptureLength = len(frame.Data)
			captureInfo.Length = len(frame.Data)
		}
		if err := pcapWriter.WritePacket(captureInfo, frame.Data); err != nil {
			return err
		}
	}

	return nil
}

// PcapReader reads frames from a pcap stream.
type PcapReader struct {
	reader *pcapgo.Reader
	closer io.Closer
}

func NewPcapReader(r io.Reader) (*PcapReader, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pcap header")
	}
	return &PcapReader{reader: reader}, nil
}

// OpenPcap opens a pcap file by name.
func OpenPcap(filename string) (*PcapReader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	reader, err := NewPcapReader(file)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "%s", filename)
	}
	reader.closer = file
	return reader, nil
}

func (r *PcapReader) LinkType() layers.LinkType {
	return r.reader.LinkType()
}

// Next returns the next frame, or io.EOF. The frame data is a fresh copy
// and may be handed to another goroutine.
func (r *PcapReader) Next() (Frame, error) {
	data, ci, err := r.reader.ReadPacketData()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: data, CaptureInfo: ci, LinkType: r.reader.LinkType()}, nil
}

func (r *PcapReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
