package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-chainstate/internal/chain"
	"github.com/Klingon-tech/klingnet-chainstate/internal/utxo"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// parseHash decodes a 32-byte hex hash parameter.
func parseHash(s, field string) (types.Hash, *Error) {
	if s == "" {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: field + " is required"}
	}
	h, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: must be 32-byte hex", field)}
	}
	return h, nil
}

// chainError maps a chain error onto a JSON-RPC error.
func chainError(err error, what string) *Error {
	switch {
	case errors.Is(err, chain.ErrBlockNotFound), errors.Is(err, utxo.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: %v", what, err)}
	case errors.Is(err, chain.ErrInvalidBlock), errors.Is(err, chain.ErrInvalidChainReorganization):
		return &Error{Code: CodeRejected, Message: fmt.Sprintf("%s rejected: %v", what, err)}
	default:
		return &Error{Code: CodeInternalError, Message: fmt.Sprintf("%s: %v", what, err)}
	}
}

func (s *Server) handleChainGetInfo(_ *Request) (interface{}, *Error) {
	st, err := s.chain.State()
	if err != nil {
		return nil, chainError(err, "chain state")
	}
	commitment, err := s.chain.UTXOCommitment()
	if err != nil {
		return nil, chainError(err, "utxo commitment")
	}

	res := &ChainInfoResult{
		Height:          st.Height,
		BestHash:        st.BestHash.String(),
		TotalDifficulty: st.TotalDifficulty,
		ChainWork:       st.ChainWork.String(),
		GenesisHash:     st.GenesisHash.String(),
		ForkPoints:      st.ForkPoints,
		ReorgCount:      st.ReorgCount,
		Uptime:          st.Uptime,
		UTXOCommitment:  commitment.String(),
	}
	if !st.LastReorg.IsZero() {
		res.LastReorg = st.LastReorg.Unix()
	}
	return res, nil
}

func (s *Server) handleChainGetBlockByHash(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := parseHash(params.Hash, "hash")
	if rpcErr != nil {
		return nil, rpcErr
	}

	blk, err := s.chain.GetBlock(hash)
	if err != nil {
		return nil, chainError(err, "block")
	}
	return NewBlockResult(blk), nil
}

func (s *Server) handleChainGetBlockByHeight(req *Request) (interface{}, *Error) {
	var params HeightParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	blk, err := s.chain.BlockAtHeight(params.Height)
	if err != nil {
		return nil, chainError(err, fmt.Sprintf("block at height %d", params.Height))
	}
	return NewBlockResult(blk), nil
}

func (s *Server) handleChainGetTransaction(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	txHash, rpcErr := parseHash(params.Hash, "hash")
	if rpcErr != nil {
		return nil, rpcErr
	}

	// Check mempool first.
	if t := s.pool.Get(txHash); t != nil {
		res := NewTxResult(t)
		res.Pending = true
		return res, nil
	}

	t, height, err := s.chain.GetTransaction(txHash)
	if err != nil {
		return nil, chainError(err, "transaction")
	}
	res := NewTxResult(t)
	res.Height = height
	return res, nil
}

func (s *Server) handleChainGetChainWork(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := parseHash(params.Hash, "hash")
	if rpcErr != nil {
		return nil, rpcErr
	}

	work, ok := s.chain.ChainWork(hash)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no chain work recorded for %s", hash)}
	}
	return &ChainWorkResult{Hash: hash.String(), Work: work.String()}, nil
}

func (s *Server) handleChainGetForkPoints(_ *Request) (interface{}, *Error) {
	points := s.chain.ForkPoints()
	hashes := make([]string, len(points))
	for i, h := range points {
		hashes[i] = h.String()
	}
	return &ForkPointsResult{Hashes: hashes}, nil
}

func (s *Server) handleUTXOGet(req *Request) (interface{}, *Error) {
	var params OutpointParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	txID, rpcErr := parseHash(params.TxID, "tx_id")
	if rpcErr != nil {
		return nil, rpcErr
	}

	u, err := s.chain.GetUTXO(types.Outpoint{TxID: txID, Index: params.Index})
	if err != nil {
		return nil, chainError(err, "utxo")
	}
	return u, nil
}

func (s *Server) handleBlockSubmit(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.submitBlock == nil {
		return nil, &Error{Code: CodeMethodNotFound, Message: "block submission is disabled"}
	}
	var params BlockSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Block == nil || params.Block.Header == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "block with header is required"}
	}

	connected, err := s.submitBlock(ctx, params.Block)
	if err != nil {
		return nil, chainError(err, "block")
	}
	return &BlockSubmitResult{
		BlockHash: params.Block.Hash().String(),
		Height:    params.Block.Header.Height,
		Connected: connected,
	}, nil
}

func (s *Server) handleTxSubmit(req *Request) (interface{}, *Error) {
	if s.submitTx == nil {
		return nil, &Error{Code: CodeMethodNotFound, Message: "transaction submission is disabled"}
	}
	var params TxSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}

	if err := s.submitTx(params.Transaction); err != nil {
		return nil, &Error{Code: CodeRejected, Message: fmt.Sprintf("transaction rejected: %v", err)}
	}
	return &TxSubmitResult{TxHash: params.Transaction.Hash().String()}, nil
}

func (s *Server) handleMempoolGetInfo(_ *Request) (interface{}, *Error) {
	return &MempoolInfoResult{Count: s.pool.Count()}, nil
}

func (s *Server) handleMempoolGetContent(_ *Request) (interface{}, *Error) {
	txs := s.pool.Select(s.pool.Count())
	hashes := make([]string, len(txs))
	for i, t := range txs {
		hashes[i] = t.Hash().String()
	}
	return &MempoolContentResult{Hashes: hashes}, nil
}
