package contracts

// JSON ABI fragments for the fixed external contracts the engine calls.
// Only the functions the engine actually uses are declared.

const registryABI = `[
  {"type":"function","name":"getAgentCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getAgent","stateMutability":"view","inputs":[{"name":"agentId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[
    {"name":"agentToken","type":"address"},
    {"name":"treasury","type":"address"},
    {"name":"riskController","type":"address"},
    {"name":"performanceTracker","type":"address"},
    {"name":"revenueDistributor","type":"address"},
    {"name":"creator","type":"address"},
    {"name":"strategyType","type":"string"},
    {"name":"createdAt","type":"uint256"},
    {"name":"active","type":"bool"}]}]}
]`

const treasuryABI = `[
  {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"reason","type":"string"}],"outputs":[]},
  {"type":"function","name":"distributeRevenue","stateMutability":"nonpayable","inputs":[{"name":"distributor","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalDeposited","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalWithdrawn","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalRevenueDistributed","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const distributorABI = `[
  {"type":"function","name":"depositRevenue","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"getClaimable","stateMutability":"view","inputs":[{"name":"holder","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"currentEpoch","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalRevenueDeposited","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalRevenueClaimed","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const riskControllerABI = `[
  {"type":"function","name":"validateExecution","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"recordExecution","stateMutability":"nonpayable","inputs":[{"name":"pnl","type":"int256"}],"outputs":[]},
  {"type":"function","name":"setEmergencyStop","stateMutability":"nonpayable","inputs":[{"name":"stopped","type":"bool"}],"outputs":[]},
  {"type":"function","name":"emergencyStop","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"governanceFreeze","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"maxCapitalAllocationBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"maxDrawdownBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getDrawdownPct","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getDailyRemainingBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const trackerABI = `[
  {"type":"function","name":"logExecution","stateMutability":"nonpayable","inputs":[{"name":"strategyType","type":"string"},{"name":"pnl","type":"int256"},{"name":"capitalUsed","type":"uint256"},{"name":"txHash","type":"string"}],"outputs":[]},
  {"type":"function","name":"getROI","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int256"}]},
  {"type":"function","name":"getWinRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalExecutions","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"winCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"lossCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"cumulativePnL","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int256"}]},
  {"type":"function","name":"initialCapital","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalCapitalDeployed","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getRecentExecutions","stateMutability":"view","inputs":[{"name":"count","type":"uint256"}],"outputs":[{"name":"","type":"tuple[]","components":[
    {"name":"timestamp","type":"uint256"},
    {"name":"strategyType","type":"string"},
    {"name":"pnl","type":"int256"},
    {"name":"capitalUsed","type":"uint256"},
    {"name":"txHash","type":"string"}]}]}
]`

const routerABI = `[
  {"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactETHForTokens","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactTokensForETH","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const erc20ABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const stakingABI = `[
  {"type":"function","name":"stake","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"unstake","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"claimReward","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"getStaked","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"earned","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const predictionABI = `[
  {"type":"function","name":"currentEpoch","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"rounds","stateMutability":"view","inputs":[{"name":"epoch","type":"uint256"}],"outputs":[
    {"name":"epoch","type":"uint256"},
    {"name":"startTimestamp","type":"uint256"},
    {"name":"lockTimestamp","type":"uint256"},
    {"name":"closeTimestamp","type":"uint256"},
    {"name":"lockPrice","type":"int256"},
    {"name":"closePrice","type":"int256"},
    {"name":"lockOracleId","type":"uint256"},
    {"name":"closeOracleId","type":"uint256"},
    {"name":"totalAmount","type":"uint256"},
    {"name":"bullAmount","type":"uint256"},
    {"name":"bearAmount","type":"uint256"},
    {"name":"rewardBaseCalAmount","type":"uint256"},
    {"name":"rewardAmount","type":"uint256"},
    {"name":"oracleCalled","type":"bool"}]},
  {"type":"function","name":"betBull","stateMutability":"payable","inputs":[{"name":"epoch","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"betBear","stateMutability":"payable","inputs":[{"name":"epoch","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"claimable","stateMutability":"view","inputs":[{"name":"epoch","type":"uint256"},{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[{"name":"epochs","type":"uint256[]"}],"outputs":[]}
]`
