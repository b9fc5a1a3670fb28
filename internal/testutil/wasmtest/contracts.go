package wasmtest

// ==================== 测试合约 ====================

// 测试合约导出的方法
const (
	MethodNoop    = "noop"
	MethodLog     = "log"
	MethodCallBob = "call_bob"
	MethodWrite   = "write"
	MethodReturn  = "ret"
	MethodLoop    = "loop"
	MethodRecurse = "recurse"
	MethodTrap    = "trap"
	MethodAnswer  = "answer"
	MethodIter    = "iter"
)

// 数据段布局
const (
	bobPtr    = 0
	helloPtr  = 16
	argsPtr   = 32
	amountPtr = 48
	logPtr    = 64
	keyPtr    = 96
	valuePtr  = 100
)

// LogMessage MethodLog 输出的日志
const LogMessage = "hello world"

// CallGas MethodCallBob 附加给 bob.hello 的燃料
const CallGas = 1_000_000

// Contract 构造覆盖常见执行路径的测试合约
//
// 📋 **方法**：
//   - noop: 空方法
//   - log: 输出 LogMessage
//   - call_bob: 创建发往 bob 的收据，附带 FunctionCall("hello", "{}", CallGas)
//   - write: storage_write("k", "v")
//   - ret: value_return("v")
//   - loop: 死循环，用于燃料耗尽
//   - recurse: 无限递归，用于调用深度超限
//   - trap: unreachable
//   - answer: 签名为 () -> i32，不可作为合约方法调用
//   - iter: storage_iter_prefix("k")，返回时不释放迭代器
func Contract() []byte {
	b := NewBuilder()
	logUTF8 := b.Import("env", "log_utf8", []byte{I64, I64}, nil)
	batchCreate := b.Import("env", "promise_batch_create", []byte{I64, I64}, []byte{I64})
	functionCall := b.Import("env", "promise_batch_action_function_call",
		[]byte{I64, I64, I64, I64, I64, I64, I64}, nil)
	storageWrite := b.Import("env", "storage_write", []byte{I64, I64, I64, I64, I64}, []byte{I64})
	valueReturn := b.Import("env", "value_return", []byte{I64, I64}, nil)
	iterPrefix := b.Import("env", "storage_iter_prefix", []byte{I64, I64}, []byte{I64})

	void := b.Type(nil, nil)
	b.Memory(1, nil)
	b.Data(bobPtr, []byte("bob"))
	b.Data(helloPtr, []byte("hello"))
	b.Data(argsPtr, []byte("{}"))
	b.Data(logPtr, []byte(LogMessage))
	b.Data(keyPtr, []byte("k"))
	b.Data(valuePtr, []byte("v"))

	b.ExportFunc(MethodNoop, b.Func(void, nil, Code(End())))
	b.ExportFunc(MethodLog, b.Func(void, nil, Code(
		I64Const(int64(len(LogMessage))), I64Const(logPtr), Call(logUTF8),
		End(),
	)))
	b.ExportFunc(MethodCallBob, b.Func(void, nil, Code(
		I64Const(3), I64Const(bobPtr), Call(batchCreate),
		I64Const(5), I64Const(helloPtr),
		I64Const(2), I64Const(argsPtr),
		I64Const(amountPtr), I64Const(CallGas),
		Call(functionCall),
		End(),
	)))
	b.ExportFunc(MethodWrite, b.Func(void, nil, Code(
		I64Const(1), I64Const(keyPtr), I64Const(1), I64Const(valuePtr), I64Const(0),
		Call(storageWrite), Drop(),
		End(),
	)))
	b.ExportFunc(MethodReturn, b.Func(void, nil, Code(
		I64Const(1), I64Const(valuePtr), Call(valueReturn),
		End(),
	)))
	b.ExportFunc(MethodLoop, b.Func(void, nil, Code(
		Loop(), Br(0), End(),
		End(),
	)))
	recurse := b.NextFunc()
	b.ExportFunc(MethodRecurse, b.Func(void, nil, Code(Call(recurse), End())))
	b.ExportFunc(MethodTrap, b.Func(void, nil, Code(Unreachable(), End())))
	b.ExportFunc(MethodAnswer, b.Func(b.Type(nil, []byte{I32}), nil, Code(I32Const(42), End())))
	b.ExportFunc(MethodIter, b.Func(void, nil, Code(
		I64Const(1), I64Const(keyPtr), Call(iterPrefix), Drop(),
		End(),
	)))
	return b.Bytes()
}

// Noop 只导出一个空方法的最小合约
func Noop(method string) []byte {
	b := NewBuilder()
	b.Memory(1, nil)
	b.ExportFunc(method, b.Func(b.Type(nil, nil), nil, Code(End())))
	return b.Bytes()
}
